package testutils

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"gorm.io/gorm"
)

// ResetLocalState points the webtrekk dir at a fresh temporary directory for the duration of t.
func ResetLocalState(t testing.TB) string {
	dir := t.TempDir()
	t.Setenv("WEBTREKK_PATH", dir)
	return dir
}

// OpenTestDb opens a migrated database in a temporary directory that is closed when t ends.
func OpenTestDb(t testing.TB, l *logrus.Logger) *gorm.DB {
	if l == nil {
		l = tctx.NewLogger(os.Stderr)
	}
	db, err := tctx.OpenSqliteDb(filepath.Join(t.TempDir(), "webtrekk.db"), l)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, tctx.CloseDb(db))
	})
	return db
}

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTION") != ""
}

// CompareGoldens checks out against testdata/<goldenName> of the calling package. Set
// WEBTREKK_UPDATE_GOLDENS to rewrite the golden instead.
func CompareGoldens(t testing.TB, out, goldenName string) {
	goldenPath := path.Join("testdata", goldenName)
	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			expected = []byte("ERR_FILE_NOT_FOUND:" + goldenPath)
		} else {
			require.NoError(t, err)
		}
	}
	if diff := cmp.Diff(string(expected), out); diff != "" {
		if os.Getenv("WEBTREKK_UPDATE_GOLDENS") == "" {
			_, filename, line, _ := runtime.Caller(1)
			t.Fatalf("golden mismatch for %s at %s:%d (-expected +got):\n%s\nactual=\n%s", goldenName, filename, line, diff, out)
		} else {
			require.NoError(t, os.MkdirAll("testdata", os.ModePerm))
			require.NoError(t, os.WriteFile(goldenPath, []byte(out), 0o644))
		}
	}
}
