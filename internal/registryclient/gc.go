package registryclient

import (
	"context"

	"github.com/bnema/zerowrap"
)

// GCCommand is the command run inside the registry container to reclaim
// storage after manifest deletions (spec.md §6).
var GCCommand = []string{"registry", "garbage-collect", "/etc/docker/registry/config.yml"}

// RunGarbageCollection executes the registry's GC command via the
// container engine's exec facility. Failure is logged and never fails the
// rule execution that requested it (spec.md §4.3, §7).
func (c *Client) RunGarbageCollection(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, fields("RunGarbageCollection", map[string]any{
		"container_id": c.containerID,
	}))
	log := zerowrap.FromCtx(ctx)

	if c.gc == nil || c.containerID == "" {
		log.Warn().Msg("no garbage collection runner configured, skipping")
		return nil
	}

	if err := c.gc.Exec(ctx, c.containerID, GCCommand); err != nil {
		log.Warn().Err(err).Msg("garbage collection exec failed")
		return err
	}

	log.Info().Msg("garbage collection completed")
	return nil
}
