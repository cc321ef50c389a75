package health

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/ospreyops/tenantd/internal/db"
)

// DNSCheck verifies the tenant's subdomain resolves. A stack whose DNS
// record is gone is unreachable for users even when the workload is up.
type DNSCheck struct {
	baseDomain string
	resolver   string
}

func NewDNSCheck(baseDomain, resolver string) *DNSCheck {
	if resolver == "" {
		resolver = "8.8.8.8:53"
	}
	return &DNSCheck{baseDomain: baseDomain, resolver: resolver}
}

func (*DNSCheck) Name() string { return "dns" }

func (c *DNSCheck) Run(ctx context.Context, tenant *db.Tenant, _ *db.TenantInfrastructure) db.SubCheck {
	start := time.Now()
	sub := db.SubCheck{Name: "dns"}

	fqdn := dns.Fqdn(tenant.Subdomain + "." + c.baseDomain)

	client := new(dns.Client)
	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeA)

	r, _, err := client.ExchangeContext(ctx, m, c.resolver)
	sub.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("DNS query failed: %v", err)
		return sub
	}
	if r.Rcode != dns.RcodeSuccess {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("DNS query failed with code: %s", dns.RcodeToString[r.Rcode])
		return sub
	}

	var addrs int
	for _, ans := range r.Answer {
		if _, ok := ans.(*dns.A); ok {
			addrs++
		}
	}
	if addrs == 0 {
		sub.Status = db.StatusDegraded
		sub.Message = fmt.Sprintf("no A records for %s", fqdn)
		return sub
	}

	sub.Status = db.StatusHealthy
	return sub
}
