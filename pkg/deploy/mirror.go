package deploy

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(err, "failed to exec %v", cmd.Args)
	}
	return out, nil
}

// ImageMirrorer replays a prepared image mirror mapping with `oc image mirror`. Computing
// the mapping and building the images are preconditions; this step is purely mechanical.
type ImageMirrorer struct {
	logger *logrus.Entry
	runner CommandRunner
}

// NewImageMirrorer returns an ImageMirrorer that shells out to oc.
func NewImageMirrorer(logger *logrus.Entry) *ImageMirrorer {
	return &ImageMirrorer{
		logger: logger,
		runner: execRunner{},
	}
}

// Mirror runs `oc image mirror -f <mappingPath>`. A non-zero exit is returned as an error
// with the command output attached for diagnosis.
func (m *ImageMirrorer) Mirror(ctx context.Context, mappingPath string) error {
	m.logger.WithField("mapping", mappingPath).Info("mirroring images")

	out, err := m.runner.Run(ctx, "oc", "image", "mirror", "-f", mappingPath)
	if len(out) > 0 {
		m.logger.WithField("output", string(out)).Debug("oc image mirror output")
	}
	if err != nil {
		return errors.Wrap(err, "image mirror failed")
	}

	m.logger.Info("image mirror complete")
	return nil
}
