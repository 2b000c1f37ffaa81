// Package analysis wires the configuration, gateway, store and session layers
// together and exposes the entry points the CLI commands delegate to.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/errors"
	"github.com/defectscan/defectscan-go/internal/gateway"
	"github.com/defectscan/defectscan-go/internal/mapper"
	"github.com/defectscan/defectscan-go/internal/model"
	"github.com/defectscan/defectscan-go/internal/session"
	"github.com/defectscan/defectscan-go/internal/store"
)

// Environment bundles the long-lived collaborators a command needs: the
// backend client, the mapper bound to its base URL, and the state store.
type Environment struct {
	Settings *conf.Settings
	Client   *gateway.Client
	Mapper   *mapper.Mapper
	Store    *store.Store
}

// NewEnvironment constructs the collaborators from settings. The store
// restores any persisted snapshot immediately.
func NewEnvironment(settings *conf.Settings) *Environment {
	client := gateway.New(settings)
	m := mapper.New(client.BaseURL())
	return &Environment{
		Settings: settings,
		Client:   client,
		Mapper:   m,
		Store:    store.New(client, client, m, settings.State.Path),
	}
}

// Close flushes outstanding best-effort writes and releases resources.
func (e *Environment) Close() {
	e.Store.Close()
	e.Client.Close()
}

// ImageAnalysis runs one analysis batch over the given image files and prints
// the outcome. A non-zero projectID overrides the restored active project.
func ImageAnalysis(ctx context.Context, settings *conf.Settings, imagePaths []string, projectID int64) error {
	images, err := loadImages(imagePaths)
	if err != nil {
		return err
	}

	env := NewEnvironment(settings)
	defer env.Close()

	env.Store.Initialize(ctx)
	if projectID != 0 {
		if !hasProject(env.Store.Projects(), projectID) {
			return errors.Newf("project %d does not exist on the backend", projectID).
				Category(errors.CategoryValidation).
				Component("analysis").
				Build()
		}
		env.Store.SwitchProject(ctx, projectID)
	}

	provider := gateway.NewInferenceProvider(settings, env.Client)
	orchestrator := session.New(env.Store, provider, env.Mapper)
	defer orchestrator.Close()

	result, err := orchestrator.Analyze(ctx, images)
	if err != nil {
		return err
	}
	env.Store.WaitSync()

	fmt.Printf("Analyzed %d image(s), %d failed\n\n", result.Analyzed, result.Failed)
	PrintRecords(env.Store.Records())
	PrintStats(env.Store.Stats())
	return nil
}

// PrintRecords writes the record list to stdout, newest first.
func PrintRecords(records []model.DefectRecord) {
	if len(records) == 0 {
		fmt.Println("No defect records.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEFECT\tCONFIDENCE\tROOM\tSEVERITY\tSTATUS")
	for i := range records {
		r := &records[i]
		status := string(r.Status)
		if r.SyncFailed {
			status += " (sync failed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
			r.ID.String(), r.Label, r.Confidence*100, r.Room, r.Severity, status)
	}
	_ = w.Flush()
}

// PrintStats writes the derived statistics to stdout.
func PrintStats(stats model.ProjectStats) {
	fmt.Printf("\nTotal defects: %d\n", stats.TotalDefects)
	for room, count := range stats.RoomDistribution {
		fmt.Printf("  %s: %d\n", room, count)
	}
}

// loadImages reads the image files into captured-image payloads.
func loadImages(paths []string) ([]gateway.CapturedImage, error) {
	images := make([]gateway.CapturedImage, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Newf("failed to read image file: %w", err).
				Category(errors.CategoryFileIO).
				Context("path", path).
				Component("analysis").
				Build()
		}
		images = append(images, gateway.CapturedImage{
			Filename:  filepath.Base(path),
			Data:      data,
			SourceURL: path,
		})
	}
	return images, nil
}

func hasProject(projects []model.Project, id int64) bool {
	for i := range projects {
		if projects[i].ID == id {
			return true
		}
	}
	return false
}
