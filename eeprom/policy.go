package eeprom

// Policy controls the automatic behaviour of a File.
type Policy struct {
	// Autoload loads the bound source when the file is opened.
	Autoload bool `yaml:"autoload"`
	// Autosave saves a modified image when the file is closed.
	Autosave bool `yaml:"autosave"`
	// Autouuid writes a fresh UUID into saved images whose UUID is nil.
	Autouuid bool `yaml:"autouuid"`
}

func DefaultPolicy() Policy {
	return Policy{Autoload: true}
}
