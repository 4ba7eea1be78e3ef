/*
Package config loads aiflow settings from YAML or JSON.

# Overview

Config wraps a map[string]any and provides typed accessors that fall back
to a default when a key is missing or has the wrong type. Settings is the
typed view the rest of aiflow consumes:

	max_recursion: 10            # per-element visit limit while building
	final_output_timeout: 15s    # how long responses wait for a final step
	finalize_settle_timeout: 500ms
	deduplicate_chunks: true
	snapshot_path: runs.db       # empty keeps snapshots in memory
	log_level: info

The keys may also sit under a top-level "aiflow" section.

# Usage

	settings, err := config.Load("aiflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	logger := settings.Logger(os.Stderr)
	builder := aiflow.NewGraphBuilder(settings.BuilderOptions(aiflow.WithLogger(logger))...)
	run := value.NewRunValue("", settings.RunOptions(value.WithRunLogger(logger))...)

Durations accept Go duration strings ("30s") or numbers of seconds.
*/
package config
