package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/store"
)

// seedFile is the YAML layout accepted by "config seed".
type seedFile struct {
	Settings map[string]string `yaml:"settings"`
	Projects []seedProject     `yaml:"projects"`
}

type seedProject struct {
	model.Project `yaml:",inline"`
	Fields        []model.FieldDefinition `yaml:"fields"`
	Thresholds    []model.Threshold       `yaml:"thresholds"`
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}
	return nil
}

func parseSeed(path string) (*seedFile, error) {
	var s seedFile
	if err := readYAML(path, &s); err != nil {
		return nil, err
	}
	for _, p := range s.Projects {
		if err := store.ValidateProjectID(p.ID); err != nil {
			return nil, err
		}
	}
	for k := range s.Settings {
		if k != pattern.KeyQC && k != pattern.KeyAQC {
			return nil, eris.Errorf("unknown setting %q", k)
		}
	}
	return &s, nil
}

func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

// configWriter is the configuration surface "config seed" writes to.
type configWriter interface {
	UpsertProject(ctx context.Context, p model.Project) error
	EnsureProjectTables(ctx context.Context, projectID string) error
	SetSetting(ctx context.Context, key, value string) error
}

type versionWriter interface {
	SetFields(ctx context.Context, projectID, actor string, fields []model.FieldDefinition) (*model.FieldConfiguration, error)
	SetThresholds(ctx context.Context, projectID, actor string, thresholds []model.Threshold) (*model.ProjectThreshold, error)
}

// applySeed writes settings and projects. Field and threshold lists append a
// new version only when present in the file.
func applySeed(ctx context.Context, s *seedFile, st configWriter, versions versionWriter, who string) error {
	for k, v := range s.Settings {
		if err := st.SetSetting(ctx, k, v); err != nil {
			return err
		}
	}
	for _, p := range s.Projects {
		if err := st.UpsertProject(ctx, p.Project); err != nil {
			return err
		}
		if err := st.EnsureProjectTables(ctx, p.ID); err != nil {
			return err
		}
		if len(p.Fields) > 0 {
			fc, err := versions.SetFields(ctx, p.ID, who, p.Fields)
			if err != nil {
				return eris.Wrapf(err, "seed fields for %s", p.ID)
			}
			zap.L().Info("field configuration written", zap.String("project_id", p.ID), zap.Int("version", fc.Version))
		}
		if len(p.Thresholds) > 0 {
			th, err := versions.SetThresholds(ctx, p.ID, who, p.Thresholds)
			if err != nil {
				return eris.Wrapf(err, "seed thresholds for %s", p.ID)
			}
			zap.L().Info("thresholds written", zap.String("project_id", p.ID), zap.Int("version", th.Version))
		}
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage projects, field configurations and thresholds",
}

var configSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load projects, settings and configuration versions from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := parseSeed(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := applySeed(ctx, s, env.Store, env.Configs, actor()); err != nil {
			return err
		}
		zap.L().Info("seed applied", zap.Int("projects", len(s.Projects)), zap.Int("settings", len(s.Settings)))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project's active configuration and version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Store.GetProject(ctx, args[0])
		if err != nil {
			return err
		}
		fields, err := env.Configs.FieldHistory(ctx, p.ID)
		if err != nil {
			return err
		}
		thresholds, err := env.Configs.ThresholdHistory(ctx, p.ID)
		if err != nil {
			return err
		}
		formatProject(os.Stdout, p, fields, thresholds)
		return nil
	},
}

var configSetThresholdsCmd = &cobra.Command{
	Use:   "set-thresholds <project-id> <file.yaml>",
	Short: "Append a new threshold version from a YAML list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var thresholds []model.Threshold
		if err := readYAML(args[1], &thresholds); err != nil {
			return err
		}

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		th, err := env.Configs.SetThresholds(ctx, args[0], actor(), thresholds)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "threshold version %d active for %s\n", th.Version, th.ProjectID)
		return nil
	},
}

var configSetFieldsCmd = &cobra.Command{
	Use:   "set-fields <project-id> <file.yaml>",
	Short: "Append a new field configuration version from a YAML list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var fields []model.FieldDefinition
		if err := readYAML(args[1], &fields); err != nil {
			return err
		}

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		fc, err := env.Configs.SetFields(ctx, args[0], actor(), fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "field configuration version %d active for %s\n", fc.Version, fc.ProjectID)
		return nil
	},
}

func formatProject(out io.Writer, p *model.Project, fields []model.FieldConfiguration, thresholds []model.ProjectThreshold) {
	_, _ = fmt.Fprintf(out, "Project:    %s (%s)\n", p.ID, p.Name)
	_, _ = fmt.Fprintf(out, "Active:     %t\n", p.Active)
	_, _ = fmt.Fprintf(out, "Multi-row:  %v\n", p.MultiRowSections)
	_, _ = fmt.Fprintf(out, "Not counted: %v\n\n", p.FieldNotCount)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tVERSION\tACTIVE\tENTRIES\tCREATED_BY\tCREATED")
	_, _ = fmt.Fprintln(w, "----\t-------\t------\t-------\t----------\t-------")
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "fields\t%d\t%t\t%d\t%s\t%s\n",
			f.Version, f.IsActive, len(f.Fields), f.CreatedBy, f.CreatedAt.Format("2006-01-02 15:04"))
	}
	for _, t := range thresholds {
		_, _ = fmt.Fprintf(w, "thresholds\t%d\t%t\t%d\t%s\t%s\n",
			t.Version, t.IsActive, len(t.Thresholds), t.CreatedBy, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	configCmd.AddCommand(configSeedCmd, configShowCmd, configSetThresholdsCmd, configSetFieldsCmd)
	rootCmd.AddCommand(configCmd)
}
