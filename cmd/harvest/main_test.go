package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"note", "profile", "batch", "login", "status"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestURLShapeChecked(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"note", "https://www.xiaohongshu.com/user/profile/5f00aa"}, "profile"},
		{[]string{"profile", "https://www.xiaohongshu.com/explore/65a1b2c3d4"}, "不是达人主页"},
	} {
		t.Run(tc.args[0], func(t *testing.T) {
			t.Setenv("XHS_WORK_DIR", t.TempDir())
			rootCmd.SetArgs(tc.args)
			err := rootCmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
