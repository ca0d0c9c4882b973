package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDOB(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "iso", in: "1990-05-17", want: "1990-05-17", ok: true},
		{name: "slashes year first", in: "1990/5/7", want: "1990-05-07", ok: true},
		{name: "day first", in: "17/05/1990", want: "1990-05-17", ok: true},
		{name: "bare year", in: "1985", want: "1985-01-01", ok: true},
		{name: "buddhist era", in: "2539-02-01", want: "1996-02-01", ok: true},
		{name: "buddhist era day first", in: "01/02/2539", want: "1996-02-01", ok: true},
		{name: "thai digits", in: "๒๕๓๙", want: "1996-01-01", ok: true},
		{name: "impossible day", in: "1990-02-31", ok: false},
		{name: "future", in: "2030-01-01", ok: false},
		{name: "too old", in: "1850-01-01", ok: false},
		{name: "free text", in: "late eighties", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := normalizeDOB(tc.in, fixedNow)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSanitizeProfile_EvidenceCheck(t *testing.T) {
	res := profileResult{
		Name:   strPtr("  Somchai "),
		Gender: strPtr(" "),
		Weight: floatPtr(68),
		Height: floatPtr(175),
	}

	delta := sanitizeProfile(res, "user: I'm Somchai and I weigh 68 kg", fixedNow)
	require.NotNil(t, delta)
	require.Equal(t, "Somchai", *delta.Name)
	require.Nil(t, delta.Gender)
	require.Equal(t, 68.0, *delta.Weight)
	require.Nil(t, delta.Height, "height was never mentioned")
}

func TestSanitizeProfile_ThaiDigitsAndMetres(t *testing.T) {
	res := profileResult{Weight: floatPtr(55), Height: floatPtr(162)}

	delta := sanitizeProfile(res, "user: หนัก ๕๕ กิโล สูง 1.62 เมตร", fixedNow)
	require.NotNil(t, delta)
	require.Equal(t, 55.0, *delta.Weight)
	require.Equal(t, 162.0, *delta.Height)
}

func TestSanitizeProfile_DropsImplausibleValues(t *testing.T) {
	res := profileResult{
		DOB:    strPtr("2099-01-01"),
		Weight: floatPtr(700),
		Height: floatPtr(12),
	}
	require.Nil(t, sanitizeProfile(res, "700 kg and 12 cm", fixedNow))
}

func TestSanitizeProfile_AllNull(t *testing.T) {
	require.Nil(t, sanitizeProfile(profileResult{}, "hello", fixedNow))
}
