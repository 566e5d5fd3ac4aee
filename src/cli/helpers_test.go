package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"openstack-backup/src/cli"
	"openstack-backup/src/runner"
)

var fixedNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.Local)

const fixedStamp = "202403051430"

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// fakeHost answers mysql, mysqldump and service calls the way a healthy
// controller node would.
func fakeHost(schemas string) *runner.Fake {
	return runner.NewFake(func(c runner.Call) runner.FakeResult {
		switch c.Path {
		case "mysql":
			for _, a := range c.Args {
				if a == "--version" {
					return runner.FakeResult{Stdout: "mysql  Ver 8.0.36 for Linux on x86_64\n"}
				}
				if a == "show databases" {
					return runner.FakeResult{Stdout: schemas}
				}
			}
			return runner.FakeResult{}
		case "mysqldump":
			if len(c.Args) == 1 && c.Args[0] == "--version" {
				return runner.FakeResult{Stdout: "mysqldump  Ver 8.0.36 for Linux on x86_64\n"}
			}
			return runner.FakeResult{Stdout: "-- dump of " + c.Args[len(c.Args)-1] + "\n"}
		}
		return runner.FakeResult{}
	})
}

// runCLI executes args against fake and returns stdout, stderr and the exit
// code Execute would report.
func runCLI(t *testing.T, fake runner.Runner, stdin string, args ...string) (string, string, int) {
	t.Helper()
	restoreRunner := cli.SetRunnerForTest(fake)
	defer restoreRunner()
	restoreNow := cli.SetNowForTest(func() time.Time { return fixedNow })
	defer restoreNow()

	var out, errBuf bytes.Buffer
	cmd := cli.NewRootCmd(&out, &errBuf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	_, err := cmd.ExecuteC()
	code := cli.ExitCode(err, &errBuf)
	return out.String(), errBuf.String(), code
}
