package database_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openstack-backup/src/database"
	"openstack-backup/src/runner"
)

var creds = database.Credentials{User: "root", Password: "s3cret", Host: "10.0.0.5"}

func TestListSchemas_FiltersInternalSchemas(t *testing.T) {
	fake := runner.NewFake(func(c runner.Call) runner.FakeResult {
		return runner.FakeResult{Stdout: "information_schema\nnova\nglance\nperformance_schema\n"}
	})
	c := database.NewClient(fake, nil)

	got, err := c.ListSchemas(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, []string{"nova", "glance"}, got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mysql", calls[0].Path)
	assert.Equal(t, []string{"--user=root", "--host=10.0.0.5", "--skip-column-names", "--silent", "-e", "show databases"}, calls[0].Args)
	assert.Equal(t, []string{"MYSQL_PWD=s3cret"}, calls[0].Env)
	for _, a := range calls[0].Args {
		assert.NotContains(t, a, "s3cret")
	}
}

func TestListSchemas_TestAbsentIsFine(t *testing.T) {
	fake := runner.NewFake(func(runner.Call) runner.FakeResult {
		return runner.FakeResult{Stdout: "mysql\nkeystone\n"}
	})
	got, err := database.NewClient(fake, nil).ListSchemas(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "keystone"}, got)
}

func TestListSchemas_ConnectionErrors(t *testing.T) {
	cases := map[string]runner.FakeResult{
		"exit":    {Code: 1, Stderr: "Access denied"},
		"empty":   {Stdout: ""},
		"garbled": {Stdout: "ERROR 1045 (28000): Access denied\n"},
	}
	for name, res := range cases {
		res := res
		t.Run(name, func(t *testing.T) {
			fake := runner.NewFake(func(runner.Call) runner.FakeResult { return res })
			_, err := database.NewClient(fake, nil).ListSchemas(context.Background(), creds)
			var connErr *database.ConnectionError
			require.True(t, errors.As(err, &connErr), "got %v", err)
			assert.Equal(t, "10.0.0.5", connErr.Host)
		})
	}
}

func TestDumpSchema_WritesStdout(t *testing.T) {
	fake := runner.NewFake(func(c runner.Call) runner.FakeResult {
		return runner.FakeResult{Stdout: "-- dump of " + c.Args[len(c.Args)-1] + "\n"}
	})
	c := database.NewClient(fake, nil)
	dir := t.TempDir()

	require.NoError(t, c.DumpSchema(context.Background(), creds, "nova", filepath.Join(dir, "nova.sql")))
	require.NoError(t, c.DumpSchema(context.Background(), creds, "mysql", filepath.Join(dir, "mysql.sql")))

	b, err := os.ReadFile(filepath.Join(dir, "nova.sql"))
	require.NoError(t, err)
	assert.Equal(t, "-- dump of nova\n", string(b))

	lines := fake.Lines()
	assert.Equal(t, "mysqldump --user=root --host=10.0.0.5 nova", lines[0])
	assert.Equal(t, "mysqldump --user=root --host=10.0.0.5 --events mysql", lines[1])
}

func TestDumpSchema_FailureRemovesPartialFile(t *testing.T) {
	fake := runner.NewFake(func(runner.Call) runner.FakeResult {
		return runner.FakeResult{Stdout: "partial", Code: 2}
	})
	dest := filepath.Join(t.TempDir(), "glance.sql")
	err := database.NewClient(fake, nil).DumpSchema(context.Background(), creds, "glance", dest)

	var dumpErr *database.DumpError
	require.True(t, errors.As(err, &dumpErr))
	assert.Equal(t, "glance", dumpErr.Schema)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadSchema_StreamsFileOnStdin(t *testing.T) {
	fake := runner.NewFake(nil)
	c := database.NewClient(fake, nil)
	var progress bytes.Buffer
	c.Progress = &progress

	src := filepath.Join(t.TempDir(), "keystone.sql")
	require.NoError(t, os.WriteFile(src, []byte("CREATE TABLE t (id int);\n"), 0o600))
	require.NoError(t, c.LoadSchema(context.Background(), creds, "keystone", src))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"--user=root", "--host=10.0.0.5", "-e", "CREATE DATABASE IF NOT EXISTS `keystone`"}, calls[0].Args)
	assert.Equal(t, []string{"MYSQL_PWD=s3cret"}, calls[0].Env)
	assert.Equal(t, "mysql --user=root --host=10.0.0.5 keystone", calls[1].Line())
	assert.Equal(t, "CREATE TABLE t (id int);\n", calls[1].Stdin)
	assert.True(t, strings.Contains(progress.String(), "[keystone]"))
}

func TestLoadSchema_Errors(t *testing.T) {
	c := database.NewClient(runner.NewFake(func(runner.Call) runner.FakeResult { return runner.FakeResult{Code: 1} }), nil)
	var loadErr *database.LoadError

	err := c.LoadSchema(context.Background(), creds, "nova", filepath.Join(t.TempDir(), "missing.sql"))
	require.True(t, errors.As(err, &loadErr))

	src := filepath.Join(t.TempDir(), "nova.sql")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))
	err = c.LoadSchema(context.Background(), creds, "nova", src)
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "nova", loadErr.Schema)
}

func TestParseVersion(t *testing.T) {
	cases := map[string]string{
		"mysql  Ver 14.14 Distrib 5.7.42, for Linux (x86_64) using  EditLine wrapper": "5.7.42",
		"mysql  Ver 8.0.36 for Linux on x86_64 (MySQL Community Server - GPL)":        "8.0.36",
		"mysql  Ver 15.1 Distrib 10.6.12-MariaDB, for debian-linux-gnu (x86_64)":      "10.6.12-MariaDB",
	}
	for in, want := range cases {
		got, err := database.ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := database.ParseVersion("garbage")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	fake := runner.NewFake(func(c runner.Call) runner.FakeResult {
		if c.Path == "mysqldump" {
			return runner.FakeResult{Stdout: "mysqldump  Ver 10.13 Distrib 5.7.42, for Linux (x86_64)\n"}
		}
		return runner.FakeResult{Stdout: "mysql  Ver 8.0.36 for Linux on x86_64\n"}
	})
	c := database.NewClient(fake, nil)
	v, err := c.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", v)
	v, err = c.DetectDump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.7.42", v)
}

func TestLoadSchema_CreateFailureSkipsLoad(t *testing.T) {
	fake := runner.NewFake(func(c runner.Call) runner.FakeResult {
		if len(c.Args) > 2 && c.Args[2] == "-e" {
			return runner.FakeResult{Code: 1, Stderr: "ERROR 1044 (42000): Access denied"}
		}
		return runner.FakeResult{}
	})
	src := filepath.Join(t.TempDir(), "nova.sql")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	err := database.NewClient(fake, nil).LoadSchema(context.Background(), creds, "nova", src)
	var loadErr *database.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Len(t, fake.Calls(), 1)
}
