package transport

import "testing"

func TestValidateHostURL_RejectsNonHTTPScheme(t *testing.T) {
	if _, err := ValidateHostURL("ftp://example.com", false); err == nil {
		t.Error("expected ftp scheme to be rejected")
	}
}

func TestValidateHostURL_RejectsPathTraversal(t *testing.T) {
	if _, err := ValidateHostURL("http://example.com/../secret", false); err == nil {
		t.Error("expected path traversal to be rejected")
	}
}

func TestValidateHostURL_RejectsLoopbackByDefault(t *testing.T) {
	if _, err := ValidateHostURL("http://127.0.0.1:9090", false); err == nil {
		t.Error("expected loopback to be rejected when allowPrivate is false")
	}
}

func TestValidateHostURL_RejectsLiteralLocalhost(t *testing.T) {
	if _, err := ValidateHostURL("http://localhost:9090", false); err == nil {
		t.Error("expected literal localhost to be rejected")
	}
}

func TestValidateHostURL_RejectsCloudMetadataEndpoint(t *testing.T) {
	if _, err := ValidateHostURL("http://169.254.169.254/latest/meta-data", false); err == nil {
		t.Error("expected cloud metadata address to be rejected")
	}
}

func TestValidateHostURL_AllowsPrivateWithEscapeHatch(t *testing.T) {
	if _, err := ValidateHostURL("http://10.0.0.5:9090", true); err != nil {
		t.Errorf("expected private address to be allowed with allowPrivate=true, got %v", err)
	}
}

func TestValidateHostURL_AcceptsOrdinaryPublicHost(t *testing.T) {
	if _, err := ValidateHostURL("https://metrics.example.com:9090", false); err != nil {
		t.Errorf("expected ordinary public host to be accepted, got %v", err)
	}
}
