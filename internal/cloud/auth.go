package cloud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Settings is a parsed IoT Hub device connection string.
type Settings struct {
	// HostName is the hub FQDN, e.g. "myhub.azure-devices.net".
	HostName string
	// DeviceID is the device identity registered with the hub.
	DeviceID string
	// SharedAccessKey is the base64-encoded signing key.
	SharedAccessKey string
	// SharedAccessKeyName is the policy name; empty for device-scoped keys.
	SharedAccessKeyName string
}

// ParseConnectionString parses the semicolon-delimited
// "HostName=…;DeviceId=…;SharedAccessKey=…" format used by the IoT Hub
// portal. Unknown fields are ignored.
func ParseConnectionString(s string) (Settings, error) {
	var cs Settings
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Settings{}, fmt.Errorf("cloud: malformed connection string field %q", k)
		}
		switch k {
		case "HostName":
			cs.HostName = v
		case "DeviceId":
			cs.DeviceID = v
		case "SharedAccessKey":
			cs.SharedAccessKey = v
		case "SharedAccessKeyName":
			cs.SharedAccessKeyName = v
		}
	}
	if cs.HostName == "" {
		return Settings{}, fmt.Errorf("cloud: connection string missing HostName")
	}
	if cs.DeviceID == "" {
		return Settings{}, fmt.Errorf("cloud: connection string missing DeviceId")
	}
	if cs.SharedAccessKey == "" {
		return Settings{}, fmt.Errorf("cloud: connection string missing SharedAccessKey")
	}
	return cs, nil
}

// ResourceURI returns the token audience for this device:
// "<host>/devices/<deviceId>".
func (s Settings) ResourceURI() string {
	return s.HostName + "/devices/" + url.PathEscape(s.DeviceID)
}

// GenerateSASToken creates a SharedAccessSignature token for an IoT Hub
// resource URI. The key is the base64-encoded value from the connection
// string; keyName may be empty for device-scoped keys.
func GenerateSASToken(resourceURI, keyName, key string, expiry time.Duration) (string, error) {
	rawKey, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("cloud: shared access key is not valid base64: %w", err)
	}
	sr := url.QueryEscape(resourceURI)
	se := time.Now().Add(expiry).Unix()
	sig := sign(sr, se, rawKey)
	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d",
		sr, url.QueryEscape(sig), se)
	if keyName != "" {
		token += "&skn=" + keyName
	}
	return token, nil
}

func sign(sr string, se int64, key []byte) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%d", sr, se)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// sanitizeErr strips SAS signatures from transport errors to avoid leaking
// credentials in log output.
func sanitizeErr(err error) error {
	s := err.Error()
	if i := strings.Index(s, "sig="); i != -1 {
		end := strings.IndexAny(s[i:], "&\" ")
		if end == -1 {
			s = s[:i] + "sig=REDACTED"
		} else {
			s = s[:i] + "sig=REDACTED" + s[i+end:]
		}
	}
	return fmt.Errorf("%s", s)
}
