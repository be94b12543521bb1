package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"supplychain/pkg/domain/model"
)

type grant struct {
	identity   string
	capability model.Capability
}

// parseGrants reads "identity:capability" pairs, e.g. SUPPLYCHAIN_ROLE_GRANTS="0xA:producer,0xB:carrier".
func parseGrants(pairs []string) ([]grant, error) {
	grants := make([]grant, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		i := strings.LastIndex(pair, ":")
		if i <= 0 || i == len(pair)-1 {
			return nil, errors.Errorf("role grant %q is not identity:capability", pair)
		}
		capability, ok := model.ParseCapability(pair[i+1:])
		if !ok {
			return nil, errors.Errorf("role grant %q has unknown capability", pair)
		}
		grants = append(grants, grant{identity: strings.TrimSpace(pair[:i]), capability: capability})
	}
	return grants, nil
}

func seedGrants(ctx context.Context, admin model.RoleAdministrator, pairs []string) error {
	grants, err := parseGrants(pairs)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if err := admin.Grant(ctx, g.identity, g.capability); err != nil {
			return errors.WithMessagef(err, "seed %s for %s", g.capability, g.identity)
		}
		log.WithFields(log.Fields{"identity": g.identity, "capability": g.capability}).Info("role granted at startup")
	}
	return nil
}

// requirePersistentStorage rejects role changes that would die with the command's own process.
func requirePersistentStorage(c *config) error {
	if c.StorageDriver == "memory" {
		return errors.New("the memory driver keeps grants inside the service process; set SUPPLYCHAIN_ROLE_GRANTS for the service instead")
	}
	return nil
}
