package app

import (
	"context"
	"errors"
	"fmt"

	"pactline/internal/config"
	"pactline/internal/repo"
)

// ResolvePactAndConfig picks the active pact and loads its config. It prefers
// the override, then the single pact in the database, then the workspace
// config file. A config file present in the workspace is also used to seed a
// missing pact_configs row.
func ResolvePactAndConfig(ctx context.Context, workspace, pactOverride string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	pactID := pactOverride
	if pactID == "" {
		if p, err := r.SinglePact(ctx); err == nil {
			pactID = p.ID
		} else if fileCfg != nil {
			pactID = fileCfg.Pact.ID
		} else {
			return "", nil, fmt.Errorf("pact not specified; use --pact or add pactline.yml")
		}
	}

	cfg, err := r.GetPactConfig(ctx, pactID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if fileCfg == nil || fileCfg.Pact.ID != pactID {
			return "", nil, fmt.Errorf("pact %s has no stored config; run pact init", pactID)
		}
		cfg = fileCfg
	}
	return pactID, cfg, nil
}
