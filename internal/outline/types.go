package outline

type DataLimit struct {
	Bytes int64 `json:"bytes"`
}

type ServerInfo struct {
	Name                  string     `json:"name"`
	ServerID              string     `json:"serverId"`
	MetricsEnabled        bool       `json:"metricsEnabled"`
	CreatedTimestampMs    int64      `json:"createdTimestampMs"`
	Version               string     `json:"version"`
	PortForNewAccessKeys  int        `json:"portForNewAccessKeys"`
	HostnameForAccessKeys string     `json:"hostnameForAccessKeys"`
	AccessKeyDataLimit    *DataLimit `json:"accessKeyDataLimit,omitempty"`
}

type AccessKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Password  string     `json:"password,omitempty"`
	Port      int        `json:"port"`
	Method    string     `json:"method"`
	AccessURL string     `json:"accessUrl"`
	DataLimit *DataLimit `json:"dataLimit,omitempty"`
}

type accessKeyList struct {
	AccessKeys []AccessKey `json:"accessKeys"`
}

type transferMetrics struct {
	BytesTransferredByUserID map[string]int64 `json:"bytesTransferredByUserId"`
}

type metricsEnabled struct {
	MetricsEnabled bool `json:"metricsEnabled"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type dataLimitRequest struct {
	Limit DataLimit `json:"limit"`
}
