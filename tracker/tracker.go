// Package tracker orchestrates snapshots: it takes them through an
// extractor, resolves references against the store, and drives diffs and
// changelogs across the stored history.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alc6/schematrack/diff"
	"github.com/alc6/schematrack/report"
	"github.com/alc6/schematrack/schema"
	"github.com/alc6/schematrack/store"
)

const (
	// LatestRef resolves to the most recent stored snapshot.
	LatestRef = "latest"

	// AutoPrefix names snapshots taken by the migration trigger.
	AutoPrefix = "auto_migration"

	DefaultPrefix = "schema_snapshot"

	NoSnapshotsMessage        = "No snapshots available for changelog generation."
	NoSnapshotsInRangeMessage = "No snapshots found in the specified date range."

	nameLayout = "2006_01_02_150405"
)

// dateLayouts are tried in order when parsing changelog range bounds.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Environment is a named second database to compare the current one against
type Environment struct {
	Enabled   bool
	Extractor SchemaExtractor
}

// Comparison is a resolved diff between two stored snapshots
type Comparison struct {
	From *schema.Snapshot
	To   *schema.Snapshot
	Diff *diff.Diff
}

// Tracker ties a snapshot store and a schema extractor to the diff engine
type Tracker struct {
	store        SnapshotStore
	extractor    SchemaExtractor
	engine       *diff.Engine
	policy       diff.Policy
	now          func() time.Time
	prefix       string
	autoSnapshot bool
	environments map[string]Environment
}

// Option configures a Tracker
type Option func(*Tracker)

func WithEngine(engine *diff.Engine) Option {
	return func(t *Tracker) { t.engine = engine }
}

func WithPolicy(policy diff.Policy) Option {
	return func(t *Tracker) { t.policy = policy }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithPrefix(prefix string) Option {
	return func(t *Tracker) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

func WithAutoSnapshot(enabled bool) Option {
	return func(t *Tracker) { t.autoSnapshot = enabled }
}

func WithEnvironment(name string, env Environment) Option {
	return func(t *Tracker) { t.environments[name] = env }
}

// New builds a tracker. The extractor may be nil for read-only use; taking
// snapshots and environment compares then fail.
func New(st SnapshotStore, extractor SchemaExtractor, opts ...Option) *Tracker {
	t := &Tracker{
		store:        st,
		extractor:    extractor,
		engine:       diff.NewEngine(),
		policy:       diff.DefaultPolicy(),
		now:          time.Now,
		prefix:       DefaultPrefix,
		autoSnapshot: true,
		environments: make(map[string]Environment),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the breaking-change policy used for summaries.
func (t *Tracker) Policy() diff.Policy {
	return t.policy
}

// Renderer returns a renderer for format bound to the tracker's policy.
func (t *Tracker) Renderer(format report.Format) (report.Renderer, error) {
	return report.New(format, t.policy)
}

// Summarize aggregates d with the tracker's policy.
func (t *Tracker) Summarize(d *diff.Diff) diff.Summary {
	return diff.Summarize(d, t.policy)
}

// DefaultName returns "<prefix>_YYYY_MM_DD_HHMMSS" for the current time.
func (t *Tracker) DefaultName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, t.now().UTC().Format(nameLayout))
}

// TakeSnapshot extracts the live schema and stores it under name. An empty
// name gets the default prefix name. An existing name is only replaced with
// force.
func (t *Tracker) TakeSnapshot(ctx context.Context, name string, force bool) (*schema.Snapshot, error) {
	if t.extractor == nil {
		return nil, fmt.Errorf("no database connection configured")
	}
	if name == "" {
		name = t.DefaultName(t.prefix)
	}

	exists, err := t.store.Exists(name)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot %s: %w", name, err)
	}
	if exists && !force {
		return nil, fmt.Errorf("%w: %s (use force to overwrite)", ErrSnapshotExists, name)
	}

	tables, err := t.extractor.Extract(ctx)
	if err != nil {
		return nil, &ExtractionError{Driver: t.extractor.Driver(), Err: err}
	}
	if tables == nil {
		tables = schema.Schema{}
	}

	snap := &schema.Snapshot{
		Name:      name,
		Timestamp: t.now().UTC(),
		Database:  t.extractor.Driver(),
		Schema:    tables,
	}
	if err := t.store.Save(snap); err != nil {
		return nil, &WriteError{Target: name, Err: err}
	}

	slog.Info("Snapshot created", "snapshot", name, "tables", len(tables), "overwritten", exists)
	return snap, nil
}

// AutoSnapshot is the migration trigger entry point. It returns nil without
// touching the database when auto snapshots are disabled.
func (t *Tracker) AutoSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	if !t.autoSnapshot {
		slog.Debug("Auto snapshot disabled, skipping")
		return nil, nil
	}
	return t.TakeSnapshot(ctx, t.DefaultName(AutoPrefix), false)
}

// Resolve maps "latest" or a snapshot name to a stored snapshot name.
func (t *Tracker) Resolve(ref string) (string, error) {
	if ref == LatestRef {
		latest, err := t.store.Latest()
		if errors.Is(err, store.ErrNotFound) || (err == nil && latest == nil) {
			return "", &ResolutionError{Ref: ref}
		}
		if err != nil {
			return "", fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		return latest.Name, nil
	}

	exists, err := t.store.Exists(ref)
	if err != nil {
		return "", fmt.Errorf("failed to check snapshot %s: %w", ref, err)
	}
	if !exists {
		return "", &ResolutionError{Ref: ref}
	}
	return ref, nil
}

// Get resolves ref and loads the snapshot.
func (t *Tracker) Get(ref string) (*schema.Snapshot, error) {
	name, err := t.Resolve(ref)
	if err != nil {
		return nil, err
	}
	snap, err := t.store.Get(name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ResolutionError{Ref: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return snap, nil
}

// List returns the stored snapshots in ascending timestamp order, keeping
// only the limit most recent ones when limit is positive.
func (t *Tracker) List(limit int) ([]schema.Snapshot, error) {
	snaps, err := t.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	return snaps, nil
}

// Delete removes a stored snapshot by exact name.
func (t *Tracker) Delete(name string) error {
	deleted, err := t.store.Delete(name)
	if err != nil {
		return &WriteError{Target: name, Err: err}
	}
	if !deleted {
		return &ResolutionError{Ref: name}
	}
	slog.Info("Snapshot deleted", "snapshot", name)
	return nil
}

// Compare resolves both references and diffs the stored snapshots.
func (t *Tracker) Compare(fromRef, toRef string) (*Comparison, error) {
	from, err := t.Get(fromRef)
	if err != nil {
		return nil, err
	}
	to, err := t.Get(toRef)
	if err != nil {
		return nil, err
	}
	return &Comparison{From: from, To: to, Diff: t.engine.CompareSnapshots(from, to)}, nil
}

// Changelog renders the diff between two references with a header
// carrying both snapshot timestamps.
func (t *Tracker) Changelog(fromRef, toRef string, format report.Format) (string, error) {
	r, err := t.Renderer(format)
	if err != nil {
		return "", err
	}
	cmp, err := t.Compare(fromRef, toRef)
	if err != nil {
		return "", err
	}
	return r.RenderChangelog(entry(cmp.From, cmp.To, cmp.Diff)), nil
}

// FullChangelog walks every stored snapshot pairwise in timestamp order.
// Fewer than two snapshots yield NoSnapshotsMessage.
func (t *Tracker) FullChangelog(format report.Format) (string, error) {
	r, err := t.Renderer(format)
	if err != nil {
		return "", err
	}
	snaps, err := t.List(0)
	if err != nil {
		return "", err
	}
	if len(snaps) < 2 {
		return NoSnapshotsMessage, nil
	}
	return r.RenderHistory(report.History{
		Title:       "Complete Schema Changelog",
		GeneratedAt: t.now().UTC(),
		Entries:     t.walk(snaps),
	}), nil
}

// RangeChangelog is FullChangelog restricted to snapshots whose timestamp
// lies in [fromDate, toDate]. A date without a time means midnight.
func (t *Tracker) RangeChangelog(fromDate, toDate string, format report.Format) (string, error) {
	r, err := t.Renderer(format)
	if err != nil {
		return "", err
	}
	lo, err := ParseDate(fromDate)
	if err != nil {
		return "", err
	}
	hi, err := ParseDate(toDate)
	if err != nil {
		return "", err
	}

	snaps, err := t.List(0)
	if err != nil {
		return "", err
	}
	var inRange []schema.Snapshot
	for _, snap := range snaps {
		if !snap.Timestamp.Before(lo) && !snap.Timestamp.After(hi) {
			inRange = append(inRange, snap)
		}
	}
	slog.Debug("Filtered snapshots by date", "from", lo, "to", hi, "count", len(inRange))

	if len(inRange) < 2 {
		return NoSnapshotsInRangeMessage, nil
	}
	return r.RenderHistory(report.History{
		Title:   fmt.Sprintf("Schema Changelog (%s to %s)", fromDate, toDate),
		Entries: t.walk(inRange),
	}), nil
}

// CompareWithEnvironment diffs the current database against the named
// environment's database.
func (t *Tracker) CompareWithEnvironment(ctx context.Context, name string) (*diff.Diff, error) {
	env, ok := t.environments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEnvironmentNotConfigured, name)
	}
	if !env.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrEnvironmentDisabled, name)
	}
	if t.extractor == nil || env.Extractor == nil {
		return nil, fmt.Errorf("no database connection configured for environment compare")
	}

	current, err := t.extractor.Extract(ctx)
	if err != nil {
		return nil, &ExtractionError{Driver: t.extractor.Driver(), Err: err}
	}
	target, err := env.Extractor.Extract(ctx)
	if err != nil {
		return nil, &ExtractionError{Driver: env.Extractor.Driver(), Err: fmt.Errorf("environment %s: %w", name, err)}
	}

	slog.Debug("Comparing with environment", "environment", name,
		"current_tables", len(current), "environment_tables", len(target))
	return t.engine.Compute(current, target), nil
}

// Environments returns the configured environment names.
func (t *Tracker) Environments() []string {
	names := make([]string, 0, len(t.environments))
	for name := range t.environments {
		names = append(names, name)
	}
	return names
}

func (t *Tracker) walk(snaps []schema.Snapshot) []report.Entry {
	entries := make([]report.Entry, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		from, to := &snaps[i-1], &snaps[i]
		entries = append(entries, entry(from, to, t.engine.CompareSnapshots(from, to)))
	}
	return entries
}

func entry(from, to *schema.Snapshot, d *diff.Diff) report.Entry {
	return report.Entry{
		From: report.Header{Name: from.Name, Timestamp: from.Timestamp},
		To:   report.Header{Name: to.Name, Timestamp: to.Timestamp},
		Diff: d,
	}
}

// ParseDate accepts RFC 3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"
// and "2006-01-02". Values without a zone are UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %q", value)
}
