// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/inspectors"
	"grimm.is/flowcore/internal/logging"
)

// BuildInspectors creates the bundled inspectors named in cfg, skipping the
// disabled ones.
func BuildInspectors(cfg *config.Config, logger *logging.Logger) ([]inspectors.Inspector, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var out []inspectors.Inspector

	if !cfg.Engine.IsDisabled("service") {
		svc, err := inspectors.NewServiceIdentifier(cfg.Service.Ports)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	if !cfg.Engine.IsDisabled("dns") {
		out = append(out, inspectors.NewDNSInspector(logger.WithComponent("dns")))
	}
	if !cfg.Engine.IsDisabled("tls") {
		out = append(out, inspectors.NewTLSFingerprinter(cfg.TLS, logger.WithComponent("tls")))
	}
	return out, nil
}
