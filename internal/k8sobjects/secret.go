package k8sobjects

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// Secret projects secrets. TLS secrets additionally carry certificate
// expiry so zabbix can alert on certificates running out.
type Secret struct{}

func (Secret) Kind() Kind { return KindSecrets }

func (Secret) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return nil, fmt.Errorf("%w: expected Secret, got %T", ErrMalformedObject, obj)
	}
	if secret.Name == "" {
		return nil, fmt.Errorf("%w: secret without metadata.name", ErrMalformedObject)
	}
	if secret.Namespace == "" {
		return nil, fmt.Errorf("%w: secret %s without metadata.namespace", ErrMalformedObject, secret.Name)
	}
	if cfg.NamespaceExcluded(secret.Namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(KindSecrets, secret.Namespace, secret.Name)
	checksum, err := ComputeChecksum(secret)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	rec.Payload = map[string]string{
		"name":      secret.Name,
		"namespace": secret.Namespace,
		"type":      string(secret.Type),
		"data_keys": strconv.Itoa(len(secret.Data)),
	}

	if secret.Type == corev1.SecretTypeTLS {
		if notAfter, ok := tlsNotAfter(secret.Data[corev1.TLSCertKey]); ok {
			rec.Payload["tls_not_after"] = notAfter.UTC().Format(time.RFC3339)
			rec.Payload["tls_days_left"] = strconv.Itoa(int(time.Until(notAfter).Hours() / 24))
		}
	}
	return rec, nil
}

func (Secret) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (Secret) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	daysLeft, ok := rec.Payload["tls_days_left"]
	if !ok {
		return nil
	}
	return []zabbix.Metric{
		zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,secrets,%s,%s,tls_days_left]", rec.Namespace, rec.Name),
			daysLeft,
		),
	}
}

func tlsNotAfter(certPEM []byte) (time.Time, bool) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return time.Time{}, false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, false
	}
	return cert.NotAfter, true
}
