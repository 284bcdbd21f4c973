package ui

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func TestNeonColorsAreHex(t *testing.T) {
	for _, c := range append([]lipgloss.Color{ColorNeonAmber, ColorGlassBorder}, GradientColors...) {
		s := string(c)
		require.Len(t, s, 7, "color %s", s)
		assert.Equal(t, byte('#'), s[0])
	}
}

func TestApplyColorMode(t *testing.T) {
	defer lipgloss.SetColorProfile(lipgloss.ColorProfile())

	tests := []struct {
		mode    string
		want    termenv.Profile
		wantErr bool
	}{
		{mode: ColorModeAlways, want: termenv.TrueColor},
		{mode: ColorModeNever, want: termenv.Ascii},
		{mode: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			err := ApplyColorMode(tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lipgloss.ColorProfile())
		})
	}
}

func TestApplyColorMode_AutoHonorsNoColor(t *testing.T) {
	defer lipgloss.SetColorProfile(lipgloss.ColorProfile())
	lipgloss.SetColorProfile(termenv.TrueColor)
	t.Setenv("NO_COLOR", "1")

	require.NoError(t, ApplyColorMode(ColorModeAuto))
	assert.Equal(t, termenv.Ascii, lipgloss.ColorProfile())
}

func TestFprintWarning(t *testing.T) {
	var buf bytes.Buffer
	FprintWarning(&buf, "notifier failed")

	out := stripANSI(buf.String())
	assert.Equal(t, SymbolWarning+" notifier failed\n", out)
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		want  string
	}{
		{name: "empty", data: nil, width: 10, want: ""},
		{name: "zero width", data: []float64{1, 2}, width: 0, want: ""},
		{name: "increasing", data: []float64{0, 7}, width: 10, want: "▁█"},
		{name: "flat zeros", data: []float64{0, 0, 0}, width: 10, want: "▁▁▁"},
		{name: "flat non-zero", data: []float64{3, 3}, width: 10, want: "▅▅"},
		{name: "window", data: []float64{100, 0, 7}, width: 2, want: "▁█"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.data, tt.width))
		})
	}
}

func TestRenderSparkline(t *testing.T) {
	defer lipgloss.SetColorProfile(lipgloss.ColorProfile())
	lipgloss.SetColorProfile(termenv.ANSI)

	out := RenderSparkline([]float64{0, 90}, 5, PercentThresholds)
	assert.Equal(t, "▁█", stripANSI(out))
	assert.NotEqual(t, out, stripANSI(out), "should be colored")

	assert.Empty(t, RenderSparkline(nil, 5, PercentThresholds))
}

func TestThresholds_Color(t *testing.T) {
	th := Thresholds{Warning: 5, Critical: 20}
	assert.Equal(t, ColorSuccess, th.Color(0))
	assert.Equal(t, ColorWarning, th.Color(5))
	assert.Equal(t, ColorError, th.Color(25))
}

func TestRenderHeader(t *testing.T) {
	out := stripANSI(RenderHeader(HeaderInfo{Version: "v1.0.0", Tagline: "btp2-relay", Detail: "/foo"}))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "btpmon v1.0.0", lines[0])
	assert.Equal(t, "btp2-relay", lines[1])
	assert.Equal(t, "/foo", lines[2])
	assert.Equal(t, strings.Repeat("━", HeaderWidth), lines[3])

	var buf bytes.Buffer
	FprintHeader(&buf, HeaderInfo{Title: "status"})
	assert.True(t, strings.HasPrefix(stripANSI(buf.String()), "status\n"))
}

func TestRenderSimpleTable(t *testing.T) {
	cols := []TableColumn{{Title: "Network", Width: 12}, {Title: "FW Pending", Width: 10}}

	out := RenderSimpleTable(cols, [][]string{{"ICON -> BSC", "3"}})
	assert.Contains(t, out, "Network")
	assert.Contains(t, out, "ICON -> BSC")

	assert.Empty(t, RenderSimpleTable(cols, nil))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "abcdef", PadRight("abcdef", 3))

	styled := lipgloss.NewStyle().Bold(true).Render("ab")
	assert.Equal(t, 5, lipgloss.Width(PadRight(styled, 5)))
}

func TestLoadingSpinner(t *testing.T) {
	s := NewLoadingSpinner()
	require.NotNil(t, s.Tick())

	first := stripANSI(s.Frame())
	assert.Contains(t, SpinnerFrames.Frames, first)
	assert.Equal(t, first+" Loading status...", stripANSI(s.View("Loading status")))

	// Foreign messages are ignored.
	same, cmd := s.Update("not a tick")
	assert.Nil(t, cmd)
	assert.Equal(t, first, stripANSI(same.Frame()))

	// A tick for another spinner id is ignored by bubbles as well.
	_, cmd = s.Update(spinner.TickMsg{ID: 1 << 30})
	assert.Nil(t, cmd)
}

func TestSpinner_NonTerminalPrintsOnlyFinalLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Fetching status")
	assert.Equal(t, SpinnerPending, s.State())

	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	time.Sleep(2 * spinnerInterval)
	assert.Empty(t, buf.String())

	s.Success()
	assert.Equal(t, SpinnerSuccess, s.State())
	out := stripANSI(buf.String())
	assert.True(t, strings.HasPrefix(out, SymbolComplete+" Fetching status "), out)
	assert.True(t, strings.HasSuffix(out, "s\n"))
}

func TestSpinner_Fail(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Fetching events")
	s.Start()
	s.Fail()

	assert.Equal(t, SpinnerFailed, s.State())
	assert.Contains(t, stripANSI(buf.String()), SymbolFail+" Fetching events")
}

func TestSpinner_AnimatesWhenEnabled(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	w := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})

	s := NewSpinner(w, "Working")
	s.animate = true
	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Stop()
	s.Stop()

	mu.Lock()
	out := stripANSI(buf.String())
	mu.Unlock()
	assert.Contains(t, out, "Working...")
	assert.Equal(t, "Working", s.Label())
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1.2s", formatDuration(1200*time.Millisecond))
}
