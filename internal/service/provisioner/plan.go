package provisioner

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/rust-provisioner/internal/config"
	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
)

// DescribePlan writes the ordered steps and the effective settings without touching the machine.
func DescribePlan(w io.Writer, cfg *config.Config) error {
	var builder strings.Builder

	for i, step := range domain.Steps() {
		fmt.Fprintf(&builder, "%d. %s: %s\n", i+1, step, describeStep(step, cfg))
	}

	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	builder.WriteString("\nEffective settings:\n")
	builder.Write(contents)

	_, err = io.WriteString(w, builder.String())

	return err
}

func describeStep(step domain.Step, cfg *config.Config) string {
	switch step {
	case domain.StepPrivileges:
		return "require root privileges"
	case domain.StepDownloadTool:
		return "install " + cfg.DownloadTool + " unless it is on PATH"
	case domain.StepPackages:
		return "apt-get install -y " + strings.Join(PlanFromConfig(cfg).Packages, " ")
	case domain.StepToolchain:
		return "download " + cfg.InstallerURL + " (TLS 1.2+) and run it with " + strings.Join(cfg.InstallerArgs, " ")
	case domain.StepReloadEnv:
		return "source " + envFileForPlan(cfg) + " (failure is a warning)"
	case domain.StepVerify:
		return cfg.ToolchainBinary + " --version"
	default:
		return ""
	}
}

// envFileForPlan is the file a run would source. The unexpanded setting is
// shown when the variables it refers to are unset.
func envFileForPlan(cfg *config.Config) string {
	if expanded := cfg.ExpandedEnvFile(); expanded != "" {
		return expanded
	}

	return cfg.EnvFile
}
