package config

type AppConfig struct {
	Server  ServerConfig
	Arena   ArenaConfig
	Log     LogConfig
	Catalog Catalog
	Notify  NotifyConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	arenaCfg, err := LoadArena()
	if err != nil {
		return AppConfig{}, err
	}
	catalog, err := LoadCatalog(serverCfg.GameCatalogPath)
	if err != nil {
		return AppConfig{}, err
	}
	notifyCfg, err := LoadNotify()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server:  serverCfg,
		Arena:   arenaCfg,
		Log:     logCfg,
		Catalog: catalog,
		Notify:  notifyCfg,
	}, nil
}
