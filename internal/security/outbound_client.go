package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewOutboundClient はIdP（Google）への通信に使用するHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、プライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はsafeurlがDialerレベルで拒否する。
func NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
