package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rotabak/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d time.Weekday) *int {
	v := int(d)
	return &v
}

// 2026-10-18 is a Sunday.
var sunday = time.Date(2026, 10, 18, 2, 30, 0, 0, time.Local)

func TestDecideMode(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		dev  config.Device
		want Mode
	}{
		{
			name: "weekday matches",
			now:  sunday,
			dev:  config.Device{WdayOfFullBackup: day(time.Sunday)},
			want: ModeFull,
		},
		{
			name: "weekday differs",
			now:  sunday.AddDate(0, 0, 1),
			dev:  config.Device{WdayOfFullBackup: day(time.Sunday)},
			want: ModeIncremental,
		},
		{
			name: "cold storage on another weekday",
			now:  sunday.AddDate(0, 0, 2),
			dev:  config.Device{WdayOfFullBackup: day(time.Sunday), ColdStorage: true},
			want: ModeFull,
		},
		{
			name: "cold storage on its weekday",
			now:  sunday,
			dev:  config.Device{WdayOfFullBackup: day(time.Sunday), ColdStorage: true},
			want: ModeFull,
		},
		{
			name: "no weekday configured",
			now:  sunday,
			dev:  config.Device{},
			want: ModeIncremental,
		},
		{
			name: "no weekday but cold storage",
			now:  sunday,
			dev:  config.Device{ColdStorage: true},
			want: ModeFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideMode(tt.now, tt.dev))
		})
	}
}

func TestDecideModeEveryWeekday(t *testing.T) {
	dev := config.Device{WdayOfFullBackup: day(time.Wednesday)}
	for i := 0; i < 7; i++ {
		now := sunday.AddDate(0, 0, i)
		want := ModeIncremental
		if now.Weekday() == time.Wednesday {
			want = ModeFull
		}
		assert.Equal(t, want, DecideMode(now, dev), now.Weekday().String())
	}
}

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		exists bool
		want   Plan
	}{
		{name: "full without archive", mode: ModeFull, exists: false, want: Plan{Mode: ModeFull, RemoveExisting: true}},
		{name: "full with archive", mode: ModeFull, exists: true, want: Plan{Mode: ModeFull, RemoveExisting: true}},
		{name: "incremental with archive", mode: ModeIncremental, exists: true, want: Plan{Mode: ModeIncremental, Append: true}},
		{name: "incremental without archive", mode: ModeIncremental, exists: false, want: Plan{Mode: ModeIncremental}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPlan(tt.mode, tt.exists))
		})
	}
}

func TestPlanCommand(t *testing.T) {
	members := []string{"a", "b"}

	full := NewPlan(ModeFull, true).Command("/etc", "/backup_a/tars/etc.tar", members)
	assert.Equal(t, "cd /etc; tar -cf /backup_a/tars/etc.tar a b", full.String())

	appendCmd := NewPlan(ModeIncremental, true).Command("/etc", "/backup_a/tars/etc.tar", members)
	assert.Equal(t, "cd /etc; tar -rf /backup_a/tars/etc.tar --newer-mtime-than /backup_a/tars/etc.tar a b", appendCmd.String())

	// Without an archive to append to, incremental is indistinguishable from full.
	fresh := NewPlan(ModeIncremental, false).Command("/etc", "/backup_a/tars/etc.tar", members)
	assert.Equal(t, full, fresh)
}

func TestMembers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", ".hidden", "Mid"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	got, err := Members(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid", "alpha", "sub", "zeta"}, got)
}

func TestMembersMissingDir(t *testing.T) {
	_, err := Members(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestTouchCommand(t *testing.T) {
	at := time.Date(2026, 10, 18, 2, 30, 7, 0, time.Local)
	cmd := TouchCommand("/backup_a/tars/etc.tar", at)
	assert.Equal(t, "touch -t 202610180230.07 /backup_a/tars/etc.tar", cmd.String())
}

func TestRemoveAndMkdirCommands(t *testing.T) {
	assert.Equal(t, "rm -f /backup_a/tars/etc.tar", RemoveCommand("/backup_a/tars/etc.tar").String())
	assert.Equal(t, "cd /backup_a; mkdir tars", MkdirCommand("/backup_a", "tars").String())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "full", ModeFull.String())
	assert.Equal(t, "incremental", ModeIncremental.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
