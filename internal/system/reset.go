package system

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"kanoinit/internal/logging"
)

// bootSetting is one key of the firmware boot config. A nil value comments
// the key out.
type bootSetting struct {
	key   string
	value *int
}

func intp(v int) *int { return &v }

var factoryBootSettings = []bootSetting{
	{"hdmi_ignore_edid_audio", intp(1)},
	{"hdmi_drive", nil},
	{"disable_overscan", intp(1)},
	{"overscan_left", intp(0)},
	{"overscan_right", intp(0)},
	{"overscan_top", intp(0)},
	{"overscan_bottom", intp(0)},
	{"hdmi_pixel_encoding", intp(2)},
	{"hdmi_group", nil},
	{"hdmi_mode", nil},
}

// RestoreFactorySettings forgets the wifi network, resets audio to the
// analogue output and puts the display settings back to their defaults.
func (l *Linux) RestoreFactorySettings(ctx context.Context) error {
	if !l.config.DryRun {
		if err := os.Remove(l.config.WifiCache); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Get(logging.CategorySystem).Warn("removing wifi cache: %v", err)
		}
	}

	if err := l.editFile(l.config.AudioConfig, amixerLine, "amixer -c 0 cset numid=3 1"); err != nil {
		return err
	}

	data, err := os.ReadFile(l.config.BootConfig)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Get(logging.CategorySystem).Warn("%s missing, display settings not reset", l.config.BootConfig)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading boot config: %w", err)
	}

	text := string(data)
	for _, s := range factoryBootSettings {
		text = setBootValue(text, s)
	}
	if text == string(data) {
		return nil
	}
	if l.config.DryRun {
		logging.System("dry-run: would reset %s", l.config.BootConfig)
		return nil
	}
	logging.System("boot config reset to factory settings")
	return writeFile(l.config.BootConfig, []byte(text))
}

// setBootValue rewrites the first line for s.key, commented or not. Missing
// keys are appended unless they are being commented out.
func setBootValue(text string, s bootSetting) string {
	re := regexp.MustCompile(`(?m)^#?[ \t]*` + regexp.QuoteMeta(s.key) + `=(.*)$`)
	loc := re.FindStringSubmatchIndex(text)

	if loc == nil {
		if s.value == nil {
			return text
		}
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return text + s.key + "=" + strconv.Itoa(*s.value) + "\n"
	}

	var line string
	if s.value == nil {
		line = "#" + s.key + "=" + text[loc[2]:loc[3]]
	} else {
		line = s.key + "=" + strconv.Itoa(*s.value)
	}
	return text[:loc[0]] + line + text[loc[1]:]
}
