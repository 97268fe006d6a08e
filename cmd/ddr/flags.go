package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CamJohns/ddr-cmdln/internal/config"
	"github.com/CamJohns/ddr-cmdln/internal/identifier"
	"github.com/CamJohns/ddr-cmdln/internal/pipeline"
	"github.com/CamJohns/ddr-cmdln/internal/processor"
	"github.com/CamJohns/ddr-cmdln/internal/transform"
	"github.com/CamJohns/ddr-cmdln/internal/vocab"
)

// runFlags are the transform and commit flags shared by batch and process.
type runFlags struct {
	user   string
	mail   string
	commit bool
	dryRun bool

	noVerify  bool
	noGPGSign bool

	include         string
	exclude         string
	models          []string
	repairTopics    bool
	backfillCreated bool

	json bool
}

func (f *runFlags) register(cmd *cobra.Command, defaults *config.Config) {
	fs := cmd.Flags()
	fs.StringVarP(&f.user, "user", "u", "", "Commit author name")
	fs.StringVarP(&f.mail, "mail", "m", "", "Commit author email")
	fs.BoolVarP(&f.commit, "commit", "C", false, "Commit each collection whose documents all succeeded")
	fs.BoolVar(&f.dryRun, "dryrun", false, "Run transforms but write and commit nothing")
	fs.BoolVar(&f.noVerify, "no-verify", false, "Skip pre-commit and commit-msg hooks")
	fs.BoolVar(&f.noGPGSign, "no-gpg-sign", false, "Do not sign commits even if commit.gpgSign is set")

	fs.StringVarP(&f.include, "include", "i", "", "Only process identifiers matching this glob")
	fs.StringVarP(&f.exclude, "exclude", "e", "", "Skip identifiers matching this glob")
	fs.StringSliceVar(&f.models, "models", nil, "Only process these models (collection,entity,segment,file)")
	fs.BoolVar(&f.repairTopics, "repair-topics", false, "Repair topics values on entities and segments")
	fs.BoolVar(&f.backfillCreated, "backfill-created", false, "Set record_created from the earliest commit of each document")

	fs.String("agent", defaults.Git.Agent, "Agent tag written into commit messages")
	fs.Duration("record-timeout", defaults.Batch.RecordTimeout, "Time budget for transforming one document (0 for none)")
	fs.String("vocab", defaults.Vocab.TopicsPath, "Topics vocabulary file used by --repair-topics")
	fs.BoolVar(&f.json, "json", false, "Print the result as JSON")
}

func (f *runFlags) transformConfig() (transform.Config, error) {
	cfg := transform.Config{
		Include:         f.include,
		Exclude:         f.exclude,
		RepairTopics:    f.repairTopics,
		BackfillCreated: f.backfillCreated,
	}
	for _, name := range f.models {
		m, err := identifier.ParseModel(strings.TrimSpace(name))
		if err != nil {
			return cfg, pipeline.NewConfigurationError("models", err.Error())
		}
		cfg.Models = append(cfg.Models, m)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, pipeline.NewConfigurationError("transform", err.Error())
	}
	return cfg, nil
}

func (f *runFlags) commitConfig(cfg *config.Config) pipeline.CommitConfig {
	return pipeline.CommitConfig{
		Commit:    f.commit,
		Identity:  pipeline.Identity{User: strings.TrimSpace(f.user), Mail: strings.TrimSpace(f.mail)},
		Agent:     cfg.Git.Agent,
		DryRun:    f.dryRun,
		NoVerify:  f.noVerify,
		NoGPGSign: f.noGPGSign,
	}
}

// newProcessor builds the collection processor from the effective config.
func (c *commandContext) newProcessor(repairTopics bool) (*processor.Processor, error) {
	opts := []processor.Option{
		processor.WithLogger(c.logger),
		processor.WithRecordTimeout(c.cfg.Batch.RecordTimeout),
	}
	if repairTopics && c.cfg.Vocab.TopicsPath != "" {
		v, err := vocab.LoadVocabulary(c.cfg.Vocab.TopicsPath)
		if err != nil {
			return nil, pipeline.NewConfigurationError("vocab", err.Error())
		}
		c.logger.Info("loaded topics vocabulary", "path", c.cfg.Vocab.TopicsPath, "terms", len(v))
		opts = append(opts, processor.WithRepairer(vocab.NewRepairer(v)))
	}
	return processor.New(opts...), nil
}

// readIDs reads collection identifiers, one per line. Blank lines and
// lines starting with # are ignored.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipeline.NewConfigurationError("ids", err.Error())
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, pipeline.NewConfigurationError("ids", fmt.Sprintf("read %s: %v", path, err))
	}
	return ids, nil
}
