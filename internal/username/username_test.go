package username

import (
	"errors"
	"strings"
	"testing"

	"kanoinit/internal/i18n"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taken(names ...string) ExistsFunc {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestValidate(t *testing.T) {
	exists := taken("root", "pi")

	tests := []struct {
		in     string
		want   string
		reason Reason
		over   int
	}{
		{in: "", reason: Empty},
		{in: "   ", reason: Empty},
		{in: "Iñaki", reason: Charset},
		{in: "José", reason: Charset},
		{in: "Mercè", reason: Charset},
		{in: "Esth,er", reason: Charset},
		{in: ",Francesc", reason: Charset},
		{in: ",Mathias,", reason: Charset},
		{in: "pi", reason: Taken},
		{in: strings.Repeat("a", 28), reason: TooLong, over: 3},
		{in: "Carlos Espacio", want: "CarlosEspacio"},
		{in: "ana", want: "ana"},
		{in: strings.Repeat("b", MaxLength), want: strings.Repeat("b", MaxLength)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Validate(tt.in, exists)
			if tt.reason == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)
			assert.Equal(t, tt.over, verr.Over)
		})
	}
}

func TestValidateOrder(t *testing.T) {
	// A taken name that is also too long reports Taken first.
	long := strings.Repeat("x", 30)
	_, err := Validate(long, taken(long))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, Taken, verr.Reason)

	// Bad characters win over taken.
	_, err = Validate("a-b", taken("a-b"))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, Charset, verr.Reason)
}

func TestMessages(t *testing.T) {
	_, err := Validate(strings.Repeat("a", 27), nil)
	assert.EqualError(t, err, "This one is too long by 2 characters! Try again.")

	_, err = Validate("", nil)
	assert.EqualError(t, err, "Type a cool name.")

	es, perr := i18n.New("es")
	require.NoError(t, perr)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Escribe un nombre chulo.", verr.Message(es))
}

func TestMakeUnique(t *testing.T) {
	assert.Equal(t, "kano", MakeUnique("", nil))
	assert.Equal(t, "kano", MakeUnique("!!", nil))
	assert.Equal(t, "Josmara", MakeUnique("José maría", nil))
	assert.Equal(t, "kano", MakeUnique("kano", taken("root")))
	assert.Equal(t, "kano1", MakeUnique("kano", taken("kano")))
	assert.Equal(t, "kano3", MakeUnique("kano", taken("kano", "kano1", "kano2")))

	long := strings.Repeat("z", 40)
	got := MakeUnique(long, taken(strings.Repeat("z", MaxLength)))
	assert.Equal(t, strings.Repeat("z", MaxLength-1)+"1", got)
	assert.Len(t, got, MaxLength)
}

func TestMakeUniqueAlwaysValidates(t *testing.T) {
	exists := taken("kano", "kano1", "ana")
	for _, in := range []string{"", "kano", "ana", "Carlos Espacio", "ü", strings.Repeat("q", 60)} {
		got := MakeUnique(in, exists)
		_, err := Validate(got, exists)
		assert.NoError(t, err, "MakeUnique(%q) = %q", in, got)
	}
}
