package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// RegistryPreflight verifies the npm registry is reachable before planning
// starts. Workspaces without a package.json skip the probe entirely; so does
// SPRINTFOUNDRY_SKIP_REGISTRY_PREFLIGHT. An unreachable registry aborts the
// run: agents would otherwise burn their budgets failing npm installs.
func RegistryPreflight(ctx context.Context, workspacePath, registryURL string, skip bool, logger zerolog.Logger) error {
	if skip {
		logger.Debug().Msg("registry preflight skipped by configuration")
		return nil
	}
	if !fileExists(filepath.Join(workspacePath, "package.json")) {
		return nil
	}

	url := registryURL
	if env := os.Getenv(constants.EnvNpmRegistry); env != "" {
		url = env
	} else if env := os.Getenv(constants.EnvNpmRegistryLower); env != "" {
		url = env
	}
	if url == "" {
		url = constants.DefaultRegistryURL
	}

	probeCtx, cancel := context.WithTimeout(ctx, constants.RegistryPreflightTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", sferrors.ErrRegistryUnreachable, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s (configure a reachable mirror via %s or bypass with %s=true)",
			sferrors.ErrRegistryUnreachable, url, constants.EnvNpmRegistry, constants.EnvSkipRegistryPreflight)
	}
	defer func() { _ = resp.Body.Close() }()

	logger.Debug().Str("registry", url).Int("status", resp.StatusCode).Msg("registry preflight ok")
	return nil
}
