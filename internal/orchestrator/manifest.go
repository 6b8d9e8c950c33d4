package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/types"
)

// ManifestName is written into every destination folder.
const ManifestName = "backup.yml"

// Manifest describes the content of one backup folder.
type Manifest struct {
	RunID     string     `yaml:"run_id"`
	Kind      string     `yaml:"kind"`
	Status    string     `yaml:"status"`
	Hostname  string     `yaml:"hostname,omitempty"`
	Version   string     `yaml:"version,omitempty"`
	StartTime time.Time  `yaml:"start_time"`
	EndTime   time.Time  `yaml:"end_time"`
	Cutoff    *time.Time `yaml:"cutoff,omitempty"`
	Sources   []string   `yaml:"sources"`
	Files     struct {
		Total     int `yaml:"total"`
		Succeeded int `yaml:"succeeded"`
		Failed    int `yaml:"failed"`
	} `yaml:"files"`
	Bytes       int64    `yaml:"bytes"`
	Interrupted bool     `yaml:"interrupted,omitempty"`
	Errors      []string `yaml:"errors,omitempty"`
}

func newManifest(run types.BackupRun, status report.Status, version string) Manifest {
	host, _ := os.Hostname()
	m := Manifest{
		RunID:       run.ID,
		Kind:        run.Kind.String(),
		Status:      string(status),
		Hostname:    host,
		Version:     version,
		StartTime:   run.StartTime,
		EndTime:     run.EndTime,
		Sources:     run.Sources,
		Bytes:       run.ProcessedBytes,
		Interrupted: run.Interrupted,
	}
	if !run.Cutoff.IsZero() {
		cutoff := run.Cutoff
		m.Cutoff = &cutoff
	}
	m.Files.Total = run.TotalFiles
	m.Files.Succeeded = run.SucceededFiles
	m.Files.Failed = run.FailedFiles
	for _, fe := range run.Errors {
		m.Errors = append(m.Errors, fe.String())
	}
	return m
}

func (o *Orchestrator) writeManifest(run types.BackupRun, status report.Status) error {
	data, err := yaml.Marshal(newManifest(run, status, o.version))
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return o.fs.WriteFile(filepath.Join(run.DestinationDir, ManifestName), data, 0o644)
}

// ReadManifest loads the manifest of a backup folder.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// LatestManifest returns the folder and manifest of the newest backup under
// root that carries a readable manifest.
func LatestManifest(root string) (string, Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", Manifest{}, err
	}
	var newest string
	var newestTime time.Time
	var found Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, ok := parseFolderName(e.Name())
		if !ok || (newest != "" && !ts.After(newestTime)) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := ReadManifest(dir)
		if err != nil {
			continue
		}
		newest, newestTime, found = dir, ts, m
	}
	if newest == "" {
		return "", Manifest{}, os.ErrNotExist
	}
	return newest, found, nil
}
