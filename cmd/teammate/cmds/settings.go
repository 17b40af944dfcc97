package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/go-go-golems/teammate/pkg/config"
	"github.com/go-go-golems/teammate/pkg/session"
)

func loadSettings() (*config.Settings, error) {
	s, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("url", s.URL).
		Str("store", string(s.Store.Kind)).
		Str("store_path", s.Store.Path).
		Msg("Loaded settings")
	return s, nil
}

func openStore(s *config.Settings) (session.Store, error) {
	store, err := config.OpenStore(s.Store)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s session store", s.Store.Kind)
	}
	return store, nil
}
