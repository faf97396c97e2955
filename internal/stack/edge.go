package stack

import (
	"strconv"
	"strings"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/model"
)

const (
	httpsPort = 443
	httpPort  = 80
)

// addCertificate requests a DNS-validated certificate. CloudFormation
// writes the validation record into the hosted zone and blocks until the
// certificate is issued.
func addCertificate(t *cfn.Template, domain, zoneID string) {
	t.Add("Certificate", cfn.CertificateManagerCertificate, cfn.Props{
		"DomainName":       domain,
		"ValidationMethod": "DNS",
		"DomainValidationOptions": []any{map[string]any{
			"DomainName":   domain,
			"HostedZoneId": zoneID,
		}},
	})
}

func addEdgeSecurityGroup(t *cfn.Template, l *vpcLayout) {
	t.Add("EdgeSecurityGroup", cfn.EC2SecurityGroup, cfn.Props{
		"GroupDescription": "Public HTTP and HTTPS to the load balancer",
		"VpcId":            cfn.Ref(l.vpc),
		"SecurityGroupIngress": []any{
			ingressFromAnywhere(httpPort),
			ingressFromAnywhere(httpsPort),
		},
		"SecurityGroupEgress": []any{allEgress()},
	})
}

func ingressFromAnywhere(port int) map[string]any {
	return map[string]any{
		"IpProtocol":  "tcp",
		"FromPort":    port,
		"ToPort":      port,
		"CidrIp":      "0.0.0.0/0",
		"Description": "Allow from anyone on port " + strconv.Itoa(port),
	}
}

func allEgress() map[string]any {
	return map[string]any{
		"IpProtocol":  "-1",
		"CidrIp":      "0.0.0.0/0",
		"Description": "Allow all outbound traffic",
	}
}

func addLoadBalancer(t *cfn.Template, l *vpcLayout) {
	t.Add("LoadBalancer", cfn.ElasticLoadBalancingLoadBalancer, cfn.Props{
		"Type":           "application",
		"Scheme":         "internet-facing",
		"Subnets":        l.publicRefs(),
		"SecurityGroups": cfn.Refs("EdgeSecurityGroup"),
	}).DependOn(l.gateway, "PublicDefaultRoute")
}

func addTargetGroup(t *cfn.Template, l *vpcLayout, hc model.HealthCheck, port int) {
	t.Add("TargetGroup", cfn.ElasticLoadBalancingTargetGroup, cfn.Props{
		"VpcId":                      cfn.Ref(l.vpc),
		"Port":                       port,
		"Protocol":                   "HTTP",
		"TargetType":                 "ip",
		"HealthCheckEnabled":         true,
		"HealthCheckPath":            hc.Path,
		"HealthCheckProtocol":        "HTTP",
		"HealthCheckIntervalSeconds": int(hc.Interval.Seconds()),
		"HealthCheckTimeoutSeconds":  int(hc.Timeout.Seconds()),
		"HealthyThresholdCount":      hc.HealthyThreshold,
		"UnhealthyThresholdCount":    hc.UnhealthyThreshold,
		"Matcher":                    map[string]any{"HttpCode": hc.HealthyHTTPCodes},
		"TargetGroupAttributes": []any{map[string]any{
			"Key":   "deregistration_delay.timeout_seconds",
			"Value": strconv.Itoa(int(hc.DeregistrationDelay.Seconds())),
		}},
	})
}

// addListeners adds the HTTPS listener that forwards to the service and
// the HTTP listener whose only action is a permanent redirect to HTTPS.
func addListeners(t *cfn.Template) {
	t.Add("HttpsListener", cfn.ElasticLoadBalancingListener, cfn.Props{
		"LoadBalancerArn": cfn.Ref("LoadBalancer"),
		"Port":            httpsPort,
		"Protocol":        "HTTPS",
		"Certificates":    []any{map[string]any{"CertificateArn": cfn.Ref("Certificate")}},
		"DefaultActions": []any{map[string]any{
			"Type":           "forward",
			"TargetGroupArn": cfn.Ref("TargetGroup"),
		}},
	})
	t.Add("HttpListener", cfn.ElasticLoadBalancingListener, cfn.Props{
		"LoadBalancerArn": cfn.Ref("LoadBalancer"),
		"Port":            httpPort,
		"Protocol":        "HTTP",
		"DefaultActions":  []any{httpsRedirect()},
	})
}

func httpsRedirect() map[string]any {
	return map[string]any{
		"Type": "redirect",
		"RedirectConfig": map[string]any{
			"Protocol":   "HTTPS",
			"Port":       strconv.Itoa(httpsPort),
			"Host":       "#{host}",
			"Path":       "/#{path}",
			"Query":      "#{query}",
			"StatusCode": "HTTP_301",
		},
	}
}

func addAliasRecord(t *cfn.Template, domain, zoneID string) {
	t.Add("AliasRecord", cfn.Route53RecordSet, cfn.Props{
		"HostedZoneId": zoneID,
		"Name":         strings.TrimSuffix(domain, ".") + ".",
		"Type":         "A",
		"AliasTarget": map[string]any{
			"DNSName":              cfn.GetAtt("LoadBalancer", "DNSName"),
			"HostedZoneId":         cfn.GetAtt("LoadBalancer", "CanonicalHostedZoneID"),
			"EvaluateTargetHealth": false,
		},
	})
}
