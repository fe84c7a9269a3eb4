package config

type AppConfig struct {
	Server ServerConfig
	AI     AIConfig
	Log    LogConfig
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
	aiCfg, err := LoadAI()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		AI:     aiCfg,
		Log:    logCfg,
	}, nil
}
