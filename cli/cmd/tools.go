package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/render"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
)

// ToolsResponse is the result of setup-tools.
type ToolsResponse struct {
	Update   *media.UpdateReport `json:"update,omitempty" yaml:"update,omitempty"`
	Binaries []media.Status      `json:"binaries" yaml:"binaries"`
}

// Rows implements render.Tabular, one row per binary.
func (t ToolsResponse) Rows() [][]string {
	rows := make([][]string, 0, len(t.Binaries))
	for _, b := range t.Binaries {
		state := "ok"
		if !b.Available {
			state = "missing"
		}
		rows = append(rows, []string{b.Name, state, b.Path, b.Detail})
	}
	return rows
}

// Headers implements render.Tabular.
func (ToolsResponse) Headers() []string {
	return []string{"NAME", "STATE", "PATH", "DETAIL"}
}

// ToolsCommand returns the setup-tools command.
func ToolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-tools",
		Usage: "Install or update yt-dlp and check ffmpeg/ffprobe",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "check-only",
				Usage: "Report binaries without contacting the release API",
			},
		),
		Action: toolsAction,
	}
}

func toolsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for setup-tools command", exitFailure)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	installer := buildInstaller(cfg, logger)
	var resp ToolsResponse
	if !c.Bool("check-only") {
		report, err := installer.Update(c.Context)
		if err != nil {
			return cli.Exit("yt-dlp update failed: "+err.Error(), exitFailure)
		}
		resp.Update = &report
	}
	resp.Binaries = media.CheckBinaries(toolRequirements(cfg, installer))

	if err := r.Render(resp); err != nil {
		return err
	}
	if len(media.Missing(resp.Binaries)) > 0 {
		return cli.Exit("", exitFailure)
	}
	return nil
}
