// Package orchestrator sequences a backup or restore run across the
// database tier and the selected services.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dir "openstack-backup/src/backend/directory"
	"openstack-backup/src/database"
	"openstack-backup/src/service"
	"openstack-backup/src/snapshot"
	"openstack-backup/src/target"
	"openstack-backup/src/util/fsutil"
)

// Action selects what a run does.
type Action string

const (
	ActionBackup  Action = "backup"
	ActionRestore Action = "restore"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// RunContext carries everything a run needs. It is not modified by Run.
type RunContext struct {
	Action       Action
	Credentials  database.Credentials
	BackupRoot   string
	Targets      []target.Target
	Timestamp    time.Time
	Schema       string
	IgnoreErrors bool
	DryRun       bool
	RunID        string
}

// Database dumps, loads and lists schemas.
type Database interface {
	ListSchemas(ctx context.Context, creds database.Credentials) ([]string, error)
	DumpSchema(ctx context.Context, creds database.Credentials, schema, destFile string) error
	LoadSchema(ctx context.Context, creds database.Credentials, schema, sourceFile string) error
}

// Files copies service trees in and out of sets.
type Files interface {
	Snapshot(ctx context.Context, service, setDir string) ([]string, error)
	RestoreInto(ctx context.Context, setDir, service string) error
	PathsFor(service string) snapshot.Paths
}

// Lifecycle starts and stops service units.
type Lifecycle interface {
	SetState(ctx context.Context, action service.Action, names []string, ignoreErrors bool) error
}

// Orchestrator runs backups and restores.
type Orchestrator struct {
	DB       Database
	Files    Files
	Services Lifecycle
	Catalog  target.Catalog
	Log      *zap.Logger
	// Out receives per-target notices; nil discards them.
	Out io.Writer
	Now func() time.Time

	state State
}

// New wires an Orchestrator.
func New(db Database, files Files, services Lifecycle, catalog target.Catalog, log *zap.Logger, out io.Writer) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{DB: db, Files: files, Services: services, Catalog: catalog, Log: log, Out: out, Now: time.Now, state: StateIdle}
}

// State returns where the last Run ended, or StateIdle before any run.
func (o *Orchestrator) State() State {
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

func (o *Orchestrator) notice(format string, args ...any) {
	if o.Out != nil {
		fmt.Fprintf(o.Out, format+"\n", args...)
	}
}

// Run executes rc. Per-target failures never stop the run; they are
// collected in the returned Report.
func (o *Orchestrator) Run(ctx context.Context, rc RunContext) Report {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	if rc.Timestamp.IsZero() {
		now := time.Now
		if o.Now != nil {
			now = o.Now
		}
		rc.Timestamp = now()
	}
	rep := Report{RunID: rc.RunID, Action: rc.Action, Timestamp: rc.Timestamp, DryRun: rc.DryRun}
	log := o.Log.With(zap.String("run_id", rc.RunID), zap.String("action", string(rc.Action)))

	o.state = StateValidating
	reg, err := o.validate(rc)
	if err != nil {
		log.Error("run validation failed", zap.Error(err))
		o.state = StateFailed
		rep.State = o.state
		rep.Status = StatusFailure
		rep.err = err
		rep.Error = err.Error()
		return rep
	}

	o.state = StateExecuting
	targets := target.Order(rc.Targets, o.Catalog)
	switch rc.Action {
	case ActionBackup:
		for _, t := range targets {
			rep.Targets = append(rep.Targets, o.runTarget(ctx, log, t, func(tr *TargetReport) {
				o.backupTarget(ctx, log, rc, reg, t, tr)
			}))
		}
	case ActionRestore:
		selected := map[string]bool{}
		for _, t := range targets {
			if !t.IsDatabase() {
				selected[t.Name] = true
			}
		}
		for _, t := range targets {
			rep.Targets = append(rep.Targets, o.runTarget(ctx, log, t, func(tr *TargetReport) {
				if t.IsDatabase() {
					o.restoreDatabase(ctx, log, rc, reg, selected, tr)
					return
				}
				o.restoreService(ctx, log, rc, reg, t.Name, tr)
			}))
		}
	}
	rep.aggregate()
	if rep.Status == StatusFailure {
		o.state = StateFailed
	} else {
		o.state = StateDone
	}
	rep.State = o.state
	log.Info("run finished", zap.String("status", string(rep.Status)), zap.Int("targets", len(rep.Targets)))
	return rep
}

func (o *Orchestrator) validate(rc RunContext) (*dir.Registry, error) {
	if rc.Action != ActionBackup && rc.Action != ActionRestore {
		return nil, fmt.Errorf("unknown action %q", rc.Action)
	}
	if len(rc.Targets) == 0 {
		return nil, errors.New("no targets selected")
	}
	if strings.TrimSpace(rc.BackupRoot) == "" {
		return nil, errors.New("backup root must not be empty")
	}
	reg, err := dir.New(rc.BackupRoot)
	if err != nil {
		return nil, err
	}
	if rc.Action == ActionBackup && !rc.DryRun {
		if err := os.MkdirAll(reg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create backup root: %w", err)
		}
	}
	return reg, nil
}

func (o *Orchestrator) runTarget(ctx context.Context, log *zap.Logger, t target.Target, fn func(*TargetReport)) TargetReport {
	tr := TargetReport{Target: t.String()}
	log = log.With(zap.String("target", t.String()))
	log.Info("target started")
	o.notice("==> %s", t)
	if err := ctx.Err(); err != nil {
		tr.fail("start", err)
	} else {
		fn(&tr)
	}
	tr.finish()
	switch tr.Status {
	case StatusFailure:
		log.Error("target failed", zap.String("error", tr.Error))
		o.notice("%s: FAILED: %s", t, tr.Error)
	case StatusPlanned:
		o.notice("%s: planned", t)
	default:
		log.Info("target finished", zap.String("path", tr.SetPath), zap.Int64("bytes", tr.Bytes))
		if tr.Bytes > 0 {
			o.notice("%s: ok (%s, %s)", t, tr.SetPath, humanize.IBytes(uint64(tr.Bytes)))
		} else {
			o.notice("%s: ok (%s)", t, tr.SetPath)
		}
	}
	return tr
}

// manifest is written to manifest.json in every set. It never carries
// the database password.
type manifest struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	DBHost    string    `json:"db_host,omitempty"`
	DBUser    string    `json:"db_user,omitempty"`
	Schemas   []string  `json:"schemas,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

func (o *Orchestrator) backupTarget(ctx context.Context, log *zap.Logger, rc RunContext, reg *dir.Registry, t target.Target, tr *TargetReport) {
	if rc.DryRun {
		tr.SetPath = reg.NameFor(t.String(), rc.Timestamp)
		if t.IsDatabase() {
			tr.step("plan", "planned", "dump every user schema into "+tr.SetPath)
		} else {
			p := o.Files.PathsFor(t.Name)
			tr.step("plan", "planned", "copy "+p.Etc+" and "+p.VarLib+" into "+tr.SetPath)
		}
		tr.Status = StatusPlanned
		return
	}

	setDir, err := reg.Create(t.String(), rc.Timestamp)
	if err != nil {
		tr.fail("create set", err)
		return
	}
	tr.SetPath = setDir
	tr.step("create set", "ok", setDir)
	mf := manifest{RunID: rc.RunID, Target: t.String(), Kind: string(t.Kind), CreatedAt: rc.Timestamp.UTC()}

	if t.IsDatabase() {
		mf.DBHost, mf.DBUser = rc.Credentials.Host, rc.Credentials.User
		schemas, err := o.DB.ListSchemas(ctx, rc.Credentials)
		if err != nil {
			tr.fail("list schemas", err)
			// leave no empty set behind
			_ = os.Remove(setDir)
			return
		}
		tr.step("list schemas", "ok", strings.Join(schemas, ","))
		if rc.Schema != "" {
			if !contains(schemas, rc.Schema) {
				tr.fail("dump", fmt.Errorf("schema %s not found on %s", rc.Schema, rc.Credentials.Host))
				_ = os.Remove(setDir)
				return
			}
			schemas = []string{rc.Schema}
		}
		for _, schema := range schemas {
			if err := o.DB.DumpSchema(ctx, rc.Credentials, schema, filepath.Join(setDir, schema+".sql")); err != nil {
				log.Error("dump failed", zap.String("schema", schema), zap.Error(err))
				tr.fail("dump "+schema, err)
				continue
			}
			mf.Schemas = append(mf.Schemas, schema)
			tr.step("dump "+schema, "ok", "")
		}
	} else {
		warnings, err := o.Files.Snapshot(ctx, t.Name, setDir)
		for _, w := range warnings {
			tr.warn(w)
		}
		mf.Warnings = warnings
		if err != nil {
			tr.fail("snapshot", err)
			// a half-copied set must never become the latest one
			_ = os.RemoveAll(setDir)
			return
		}
		tr.step("snapshot", "ok", "")
	}

	if err := fsutil.WriteJSON(filepath.Join(setDir, "manifest.json"), mf); err != nil {
		tr.fail("manifest", err)
		_ = os.RemoveAll(setDir)
		return
	}
	if err := fsutil.WriteChecksums(setDir); err != nil {
		tr.fail("checksums", err)
		_ = os.RemoveAll(setDir)
		return
	}
	if n, err := fsutil.DirSize(setDir); err == nil {
		tr.Bytes = n
	}
}

func (o *Orchestrator) restoreDatabase(ctx context.Context, log *zap.Logger, rc RunContext, reg *dir.Registry, selected map[string]bool, tr *TargetReport) {
	setDir, err := reg.LatestFor(target.DatabaseName)
	if err != nil {
		tr.fail("resolve set", err)
		return
	}
	tr.SetPath = setDir
	schemas, err := dumpedSchemas(setDir)
	if err != nil {
		tr.fail("read set", err)
		return
	}
	if rc.Schema != "" {
		if !contains(schemas, rc.Schema) {
			tr.fail("load "+rc.Schema, fmt.Errorf("no dump of schema %s in %s", rc.Schema, setDir))
			return
		}
		schemas = []string{rc.Schema}
	}
	for _, schema := range schemas {
		if owner, ok := o.Catalog.OwnerOf(schema); ok && selected[owner] {
			// only hand the schema over when the owner's restore will reach it
			if _, err := reg.LatestFor(owner); err == nil {
				tr.step("load "+schema, "skipped", "restored with "+owner)
				continue
			}
		}
		if rc.DryRun {
			tr.step("load "+schema, "planned", filepath.Join(setDir, schema+".sql"))
			continue
		}
		if err := o.DB.LoadSchema(ctx, rc.Credentials, schema, filepath.Join(setDir, schema+".sql")); err != nil {
			log.Error("load failed", zap.String("schema", schema), zap.Error(err))
			tr.fail("load "+schema, err)
			continue
		}
		tr.step("load "+schema, "ok", "")
	}
	if rc.DryRun {
		tr.Status = StatusPlanned
	}
}

func (o *Orchestrator) restoreService(ctx context.Context, log *zap.Logger, rc RunContext, reg *dir.Registry, name string, tr *TargetReport) {
	setDir, err := reg.LatestFor(name)
	if err != nil {
		tr.fail("resolve set", err)
		return
	}
	tr.SetPath = setDir
	svc := o.Catalog[name]
	units := o.Catalog.Units(name)

	// schema dumps come from the newest database set, which may be absent
	dbSet, dbErr := reg.LatestFor(target.DatabaseName)

	if rc.DryRun {
		tr.step("stop", "planned", strings.Join(units, ","))
		for _, schema := range svc.Schemas {
			if dbErr != nil {
				tr.step("load "+schema, "warning", dbErr.Error())
				continue
			}
			tr.step("load "+schema, "planned", filepath.Join(dbSet, schema+".sql"))
		}
		tr.step("swap files", "planned", setDir)
		tr.step("start", "planned", strings.Join(svc.StartUnits(), ","))
		tr.Status = StatusPlanned
		return
	}

	// the controller expands the service to its units
	if err := o.Services.SetState(ctx, service.Stop, []string{name}, rc.IgnoreErrors); err != nil {
		tr.warn(fmt.Sprintf("stop: %v", err))
	} else {
		tr.step("stop", "ok", strings.Join(units, ","))
	}

	for _, schema := range svc.Schemas {
		if dbErr != nil {
			tr.warn(fmt.Sprintf("schema %s not restored: %v", schema, dbErr))
			continue
		}
		file := filepath.Join(dbSet, schema+".sql")
		if _, err := os.Stat(file); err != nil {
			tr.warn(fmt.Sprintf("schema %s not restored: no dump in %s", schema, dbSet))
			continue
		}
		if err := o.DB.LoadSchema(ctx, rc.Credentials, schema, file); err != nil {
			log.Error("load failed", zap.String("schema", schema), zap.Error(err))
			tr.fail("load "+schema, err)
			continue
		}
		tr.step("load "+schema, "ok", file)
	}

	if err := o.Files.RestoreInto(ctx, setDir, name); err != nil {
		// units stay stopped so a half-restored tree is never served
		tr.fail("swap files", err)
		return
	}
	tr.step("swap files", "ok", setDir)

	start := svc.StartUnits()
	if err := o.Services.SetState(ctx, service.Start, []string{name}, rc.IgnoreErrors); err != nil {
		tr.fail("start", err)
		return
	}
	tr.step("start", "ok", strings.Join(start, ","))
}

// dumpedSchemas lists <schema>.sql files in a database set, sorted.
func dumpedSchemas(setDir string) ([]string, error) {
	entries, err := os.ReadDir(setDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".sql"))
	}
	sort.Strings(out)
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
