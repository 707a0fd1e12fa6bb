//go:build ignore

// Package main generates a synthetic agent workspace for load-testing sync.
//
// The output directory gets the full memory surface: MEMORY.md, topic notes
// under memory/, session transcripts under sessions/, knowledge-base
// documents under kb/, and a .recall.yaml wiring them together.
//
// Usage:
//
//	go run scripts/generate-test-workspace.go -notes 500 -sessions 100 -output testdata/bench
//	recall sync --workspace testdata/bench --agent bench
//
// Pass --agent so session transcripts are enumerated; the generated
// .recall.yaml points sessionsDir at the workspace-local sessions/.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes    = flag.Int("notes", 200, "Number of memory notes to generate")
	numSessions = flag.Int("sessions", 50, "Number of session transcripts")
	numTurns    = flag.Int("turns", 40, "Messages per session transcript")
	numKBDocs   = flag.Int("kb", 20, "Number of knowledge-base documents")
	outputDir   = flag.String("output", "testdata/bench", "Output workspace directory")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

const rootMemory = `# Memory

Long-term memory for the %s agent. Notes live under memory/, grouped by
kind: decisions/ for choices with consequences, runbooks/ for operational
procedures, notes/ for everything else.

## Identity

Operates the %s and %s services. Prefers small reversible changes and
writes a decision note before any schema or infrastructure change.

## Conventions

- One note per topic, dated, with a status line
- Superseded notes stay in place with status: superseded
- Session transcripts are searchable, do not repeat their content here

## Active

- %s migration is in progress, see memory/decisions/
- %s alert volume needs a triage pass
`

const noteTemplate = `# %s

- status: %s
- updated: %s
- tags: %s, %s

## Context

The %s service %s during %s. This showed up first in the %s environment
and was traced to %s. Related work is tracked in the %s notes.

## Decision

%s. We went with %s after comparing it against %s; the deciding factor
was %s under load.

%s## Follow-ups

- Verify the change holds for %s
- Revisit once the %s migration lands
`

const extraSection = `## Notes from rollout

Rollout went out behind a flag on %s. The %s dashboard stayed flat while
the %s error rate dropped. One surprise: %s needed a manual restart after
the config change propagated.

`

const kbTemplate = `# Runbook: %s for %s

- owner: platform
- reviewed: %s

## When to use this

Use this procedure when %s %s and the usual automation has not
recovered it within ten minutes.

## Steps

1. Confirm the symptom on the %s dashboard
2. Drain in-flight work from %s
3. %s the %s service
4. Watch %s until the backlog clears
5. Write an incident note under memory/notes/

## Rollback

If step 3 makes things worse, revert with the previous release tag and
re-run the %s checks before handing off.
`

// Topic pools for plausible operational memory content.
var (
	services = []string{
		"api-gateway", "billing", "ingest-worker", "scheduler", "notifier",
		"search-proxy", "session-store", "webhook-relay", "rate-limiter",
		"audit-log", "export-service", "identity",
	}
	areas = []string{
		"deploys", "migrations", "incidents", "capacity", "alerting",
		"retries", "backpressure", "timeouts", "indexing", "caching",
	}
	symptoms = []string{
		"started timing out on cold starts", "doubled its p99 latency",
		"began rejecting writes", "leaked connections under retry storms",
		"fell behind its queue", "flapped its health checks",
	}
	phases = []string{
		"the Tuesday deploy window", "a traffic spike", "the quarterly failover test",
		"an index rebuild", "a dependency upgrade", "the regional cutover",
	}
	causes = []string{
		"a missing index on the lookup path", "an unbounded retry loop",
		"a stale connection pool limit", "clock skew between replicas",
		"a misconfigured debounce window", "double-encoded payloads",
	}
	decisions = []string{
		"Cap retries at three with jittered backoff",
		"Move the lookup to a covered index",
		"Split the worker into enumerate and embed stages",
		"Pin the pool at ten connections per instance",
		"Debounce change events for one second",
		"Gate the feature on a per-project flag",
	}
	options = []string{
		"the incremental approach", "a full rewrite", "the managed service",
		"client-side batching", "server-side fusion", "a sidecar process",
	}
	factors = []string{
		"predictable memory use", "operational simplicity", "rollback safety",
		"index build time", "steady-state latency",
	}
	actions = []string{"Restart", "Scale out", "Failover", "Redeploy", "Quarantine"}
	metrics = []string{"queue depth", "error rate", "p99 latency", "replication lag"}

	statuses = []string{"active", "active", "active", "done", "superseded"}

	userTurns = []string{
		"How do we roll back the %s deploy?",
		"What did we decide about %s retries?",
		"The %s dashboard shows a spike in %s, what changed?",
		"Summarize the open follow-ups for %s.",
		"Where is the runbook for %s failover?",
	}
	assistantTurns = []string{
		"The %s rollback is release-tag based: redeploy the previous tag, then watch %s until it clears.",
		"We capped %s retries at three with backoff; the decision note has the comparison against %s.",
		"The %s change from the last deploy window touched %s handling, checking the sync log next.",
		"Open follow-ups for %s: verify the index change under load, and revisit after the %s migration.",
		"The %s failover runbook is in the knowledge base; it starts by draining %s.",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, dir := range []string{
		*outputDir,
		filepath.Join(*outputDir, "memory", "decisions"),
		filepath.Join(*outputDir, "memory", "runbooks"),
		filepath.Join(*outputDir, "memory", "notes"),
		filepath.Join(*outputDir, "sessions"),
		filepath.Join(*outputDir, "kb"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating workspace in %s (%d notes, %d sessions, %d kb docs)...\n",
		*outputDir, *numNotes, *numSessions, *numKBDocs)

	if err := writeRoot(rng); err != nil {
		fmt.Fprintf(os.Stderr, "write MEMORY.md: %v\n", err)
		os.Exit(1)
	}
	if err := writeConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "write .recall.yaml: %v\n", err)
		os.Exit(1)
	}

	generated := 0
	for i := 0; i < *numNotes; i++ {
		if err := writeNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "note %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < *numSessions; i++ {
		if err := writeSession(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "session %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < *numKBDocs; i++ {
		if err := writeKBDoc(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "kb doc %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d files.\n", generated+2)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

// date returns a reproducible date within roughly a year of the base.
func date(rng *rand.Rand) string {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, rng.Intn(365)).Format("2006-01-02")
}

func writeRoot(rng *rand.Rand) error {
	content := fmt.Sprintf(rootMemory,
		"bench", pick(rng, services), pick(rng, services),
		pick(rng, services), pick(rng, services))
	return os.WriteFile(filepath.Join(*outputDir, "MEMORY.md"), []byte(content), 0o644)
}

// writeConfig wires the generated sessions/ and kb/ directories into the
// workspace so a plain sync picks everything up.
func writeConfig() error {
	content := `version: 1
mongodb:
  sessionsDir: sessions
  kb:
    enabled: true
    autoImportPaths:
      - kb
`
	return os.WriteFile(filepath.Join(*outputDir, ".recall.yaml"), []byte(content), 0o644)
}

func writeNote(rng *rand.Rand, index int) error {
	svc := pick(rng, services)
	area := pick(rng, areas)

	var extra string
	if rng.Intn(3) == 0 {
		extra = fmt.Sprintf(extraSection,
			date(rng), pick(rng, metrics), svc, pick(rng, services))
	}

	title := fmt.Sprintf("%s%s %s", strings.ToUpper(area[:1]), area[1:], svc)
	content := fmt.Sprintf(noteTemplate,
		title,
		pick(rng, statuses), date(rng), svc, area,
		svc, pick(rng, symptoms), pick(rng, phases), pick(rng, []string{"staging", "production", "canary"}),
		pick(rng, causes), area,
		pick(rng, decisions), pick(rng, options), pick(rng, options), pick(rng, factors),
		extra,
		svc, pick(rng, services),
	)

	kind := []string{"decisions", "runbooks", "notes"}[rng.Intn(3)]
	name := fmt.Sprintf("%s-%s-%d.md", area, svc, index)
	return os.WriteFile(filepath.Join(*outputDir, "memory", kind, name), []byte(content), 0o644)
}

// writeSession emits a JSONL transcript. Most lines are top-level
// {role, content} records; some nest the pair under "message" and some
// use the array-of-parts content shape, matching what real transcripts
// contain. The occasional non-message record must be skipped by parsing.
func writeSession(rng *rand.Rand, index int) error {
	var b strings.Builder
	for turn := 0; turn < *numTurns; turn++ {
		role, text := "user", fill(rng, pick(rng, userTurns))
		if turn%2 == 1 {
			role, text = "assistant", fill(rng, pick(rng, assistantTurns))
		}

		switch {
		case turn%13 == 12:
			b.WriteString(`{"type":"tool_use","name":"memory_search","input":{"query":"` + pick(rng, areas) + `"}}`)
		case turn%7 == 6:
			fmt.Fprintf(&b, `{"message":{"role":%q,"content":%q}}`, role, text)
		case turn%11 == 10:
			fmt.Fprintf(&b, `{"role":%q,"content":[{"type":"text","text":%q}]}`, role, text)
		default:
			fmt.Fprintf(&b, `{"role":%q,"content":%q}`, role, text)
		}
		b.WriteByte('\n')
	}

	name := fmt.Sprintf("session-%03d.jsonl", index)
	return os.WriteFile(filepath.Join(*outputDir, "sessions", name), []byte(b.String()), 0o644)
}

func writeKBDoc(rng *rand.Rand, index int) error {
	svc := pick(rng, services)
	action := strings.ToLower(pick(rng, actions))

	content := fmt.Sprintf(kbTemplate,
		action, svc,
		date(rng),
		svc, pick(rng, symptoms),
		pick(rng, metrics), svc,
		pick(rng, actions), svc, pick(rng, metrics),
		svc,
	)

	name := fmt.Sprintf("%s-%s-%d.md", action, svc, index)
	return os.WriteFile(filepath.Join(*outputDir, "kb", name), []byte(content), 0o644)
}

// fill substitutes pool words for the %s verbs in a turn template.
func fill(rng *rand.Rand, template string) string {
	args := make([]any, strings.Count(template, "%s"))
	pools := [][]string{services, areas, metrics}
	for i := range args {
		args[i] = pick(rng, pools[rng.Intn(len(pools))])
	}
	return fmt.Sprintf(template, args...)
}
