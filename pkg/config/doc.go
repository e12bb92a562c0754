// Package config loads typed configuration structs from the environment.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (struct tag parsing). Each configuration type is
// parsed once per prefix and cached, so components can call Load from
// anywhere without re-reading the environment:
//
//	var qc queue.Config
//	if err := config.Load(&qc); err != nil {
//		return err
//	}
//
// WithPrefix scopes a struct to a namespaced set of variables, which is how
// per virtual host connection settings are read:
//
//	var pgCfg pg.Config
//	err := config.Load(&pgCfg, config.WithPrefix("BILLING_"))
//	// reads BILLING_PG_CONN_URL, BILLING_PG_MAX_OPEN_CONNS, ...
//
// Env files are loaded once, on the first call, from WithEnvFiles or the
// default ".env" in the working directory. Values already present in the
// process environment win over file values.
package config
