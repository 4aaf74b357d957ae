package local

// gorm records mirroring the registration tables of an environment. Enum
// columns hold the raw platform numeric codes; conversion to canonical labels
// happens on read, the same place it would for a live environment.

type assemblyRecord struct {
	ID      string `gorm:"primaryKey"`
	Name    string `gorm:"uniqueIndex"`
	Version string
	Content []byte
}

func (assemblyRecord) TableName() string { return "plugin_assemblies" }

type typeRecord struct {
	ID         string `gorm:"primaryKey"`
	AssemblyID string `gorm:"index"`
	TypeName   string
}

func (typeRecord) TableName() string { return "plugin_types" }

type stepRecord struct {
	ID              string `gorm:"primaryKey"`
	PluginTypeID    string `gorm:"index"`
	Name            string
	Description     string
	Configuration   string
	Rank            int
	Mode            int
	Stage           int
	State           int
	AsyncAutoDelete bool
	MessageID       string
	MessageFilterID string
	RunAsUserID     string
}

func (stepRecord) TableName() string { return "message_processing_steps" }

type imageRecord struct {
	ID                  string `gorm:"primaryKey"`
	StepID              string `gorm:"index"`
	Name                string
	EntityAlias         string
	ImageType           int
	MessagePropertyName string
	Attributes          string // comma-joined attribute list
}

func (imageRecord) TableName() string { return "step_images" }

type messageRecord struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

func (messageRecord) TableName() string { return "sdk_messages" }

type filterRecord struct {
	ID            string `gorm:"primaryKey"`
	MessageID     string `gorm:"index"`
	PrimaryEntity string
}

func (filterRecord) TableName() string { return "sdk_message_filters" }

type userRecord struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"index"`
	FullName      string
}

func (userRecord) TableName() string { return "system_users" }

type webResourceRecord struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex"`
	Type           int
	Content        []byte
	HasActiveLayer bool
}

func (webResourceRecord) TableName() string { return "web_resources" }
