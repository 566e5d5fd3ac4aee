// Package database enumerates, dumps and loads MySQL schemas through the
// mysql and mysqldump command line tools.
package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"openstack-backup/src/runner"
	"openstack-backup/src/util/progress"
)

// Credentials identify the database account used for every tool call.
type Credentials struct {
	User     string
	Password string
	Host     string
}

// String never includes the password.
func (c Credentials) String() string { return c.User + "@" + c.Host }

// excludedSchemas are server-internal schemas that are never backed up.
var excludedSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"test":               true,
}

// Client drives the database tools.
type Client struct {
	Runner    runner.Runner
	MySQLPath string
	DumpPath  string
	Log       *zap.Logger
	// Progress, when set, receives load progress.
	Progress io.Writer
}

// NewClient returns a Client using the default tool names.
func NewClient(r runner.Runner, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{Runner: r, MySQLPath: "mysql", DumpPath: "mysqldump", Log: log}
}

func (c *Client) mysql() string {
	if c.MySQLPath == "" {
		return "mysql"
	}
	return c.MySQLPath
}

func (c *Client) mysqldump() string {
	if c.DumpPath == "" {
		return "mysqldump"
	}
	return c.DumpPath
}

func (c *Client) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func baseArgs(creds Credentials) []string {
	return []string{"--user=" + creds.User, "--host=" + creds.Host}
}

func env(creds Credentials) []string {
	if creds.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + creds.Password}
}

// ListSchemas returns the user-visible schemas in server order, without the
// server-internal ones.
func (c *Client) ListSchemas(ctx context.Context, creds Credentials) ([]string, error) {
	args := append(baseArgs(creds), "--skip-column-names", "--silent", "-e", "show databases")
	out, err := runner.Output(ctx, c.Runner, runner.Cmd{Path: c.mysql(), Args: args, Env: env(creds)})
	if err != nil {
		return nil, &ConnectionError{Host: creds.Host, Err: err}
	}
	var schemas []string
	seen := 0
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		seen++
		if strings.ContainsAny(name, " \t") {
			return nil, &ConnectionError{Host: creds.Host, Err: fmt.Errorf("unexpected output line %q", name)}
		}
		if excludedSchemas[name] {
			continue
		}
		schemas = append(schemas, name)
	}
	if seen == 0 {
		return nil, &ConnectionError{Host: creds.Host, Err: errors.New("empty schema listing")}
	}
	c.logger().Debug("listed schemas", zap.Strings("schemas", schemas))
	return schemas, nil
}

// DumpSchema writes a logical dump of schema to destFile. Stored events are
// included only for the mysql schema. A failed dump removes destFile.
func (c *Client) DumpSchema(ctx context.Context, creds Credentials, schema, destFile string) error {
	args := baseArgs(creds)
	if schema == "mysql" {
		args = append(args, "--events")
	}
	args = append(args, schema)

	f, err := os.Create(destFile)
	if err != nil {
		return &DumpError{Schema: schema, Err: err}
	}
	c.logger().Info("dumping schema", zap.String("schema", schema), zap.String("path", destFile))
	runErr := c.Runner.Run(ctx, runner.Cmd{Path: c.mysqldump(), Args: args, Env: env(creds), Stdout: f})
	closeErr := f.Close()
	if runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		_ = os.Remove(destFile)
		return &DumpError{Schema: schema, Err: runErr}
	}
	return nil
}

// LoadSchema creates schema when it is missing and streams sourceFile into
// it.
func (c *Client) LoadSchema(ctx context.Context, creds Credentials, schema, sourceFile string) error {
	f, err := os.Open(sourceFile)
	if err != nil {
		return &LoadError{Schema: schema, Err: err}
	}
	defer f.Close()

	var in io.Reader = f
	if c.Progress != nil {
		var size int64
		if st, err := f.Stat(); err == nil {
			size = st.Size()
		}
		in = progress.NewReader(f, size, schema, c.Progress)
	}
	// dumps taken without --databases carry no CREATE DATABASE
	create := append(baseArgs(creds), "-e", "CREATE DATABASE IF NOT EXISTS "+quoteIdent(schema))
	if err := c.Runner.Run(ctx, runner.Cmd{Path: c.mysql(), Args: create, Env: env(creds)}); err != nil {
		return &LoadError{Schema: schema, Err: fmt.Errorf("create schema: %w", err)}
	}
	args := append(baseArgs(creds), schema)
	c.logger().Info("loading schema", zap.String("schema", schema), zap.String("path", sourceFile))
	if err := c.Runner.Run(ctx, runner.Cmd{Path: c.mysql(), Args: args, Env: env(creds), Stdin: in}); err != nil {
		return &LoadError{Schema: schema, Err: err}
	}
	return nil
}

// quoteIdent backquotes a MySQL identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var versionRegexp = regexp.MustCompile(`(?i)(?:Ver|Distrib)\s+([0-9]+\.[0-9]+\.[0-9]+[A-Za-z0-9.\-]*)`)

// Detect runs the client's --version and returns the reported version.
func (c *Client) Detect(ctx context.Context) (string, error) {
	return c.queryVersion(ctx, c.mysql())
}

// DetectDump does the same for the dump tool.
func (c *Client) DetectDump(ctx context.Context) (string, error) {
	return c.queryVersion(ctx, c.mysqldump())
}

func (c *Client) queryVersion(ctx context.Context, tool string) (string, error) {
	// Guard against tools that hang by applying a short timeout.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	out, err := runner.Output(ctx, c.Runner, runner.Cmd{Path: tool, Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", tool, err)
	}
	return ParseVersion(out)
}

// ParseVersion extracts the version from mysql --version output, preferring
// the Distrib field of older clients.
func ParseVersion(out string) (string, error) {
	var found string
	for _, m := range versionRegexp.FindAllStringSubmatch(out, -1) {
		found = strings.TrimRight(m[1], ",")
	}
	if found == "" {
		return "", fmt.Errorf("unable to parse mysql version from %q", strings.TrimSpace(out))
	}
	return found, nil
}
