package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ModeSecret is used for files that may contain connection credentials
	ModeSecret = os.FileMode(0o600)

	// ConfigFile is the default name of the leaf configuration file
	ConfigFile = "leaf.yaml"

	// EnvPrefix is prepended to every environment override
	EnvPrefix = "LEAF_"

	// DefaultDatabase is the state database location relative to the user's home directory
	DefaultDatabase = ".leaf/leaf.db"

	// DefaultScriptsDir is where rendered deployment scripts are written
	DefaultScriptsDir = "scripts"

	// CutoffDateTimeLayout is the long form accepted for --cutoff-date
	CutoffDateTimeLayout = "2006.01.02:15.04.05"

	// CutoffDateLayout is the short form accepted for --cutoff-date
	CutoffDateLayout = "2006.01.02"

	// ScriptSeparator is written between statements in rendered scripts
	ScriptSeparator = "\n\n"
)

// DefaultExcludedTypes lists the object types that new plans ignore unless configured otherwise.
var DefaultExcludedTypes = []string{
	"DATABASE LINK",
	"INDEX PARTITION",
	"JAVA CLASS",
	"JAVA SOURCE",
	"JOB",
	"LIBRARY",
	"SCHEDULE",
	"SYNONYM",
	"TABLE PARTITION",
	"TABLE SUBPARTITION",
}
