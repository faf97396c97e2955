package stack

import (
	"fmt"
	"net/netip"

	"github.com/edvin/frontstack/internal/cfn"
	"github.com/edvin/frontstack/internal/model"
)

// subnetBits is how many bits each subnet adds to the VPC prefix.
const subnetBits = 8

// vpcLayout names the network resources the rest of the template refers to.
type vpcLayout struct {
	vpc            string
	gateway        string
	publicSubnets  []string
	privateSubnets []string
}

// carve returns the index-th subnet of length prefix.Bits()+bits inside
// prefix.
func carve(prefix netip.Prefix, bits, index int) (netip.Prefix, error) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%s is not an IPv4 prefix", prefix)
	}
	size := prefix.Bits() + bits
	if size > 28 {
		return netip.Prefix{}, fmt.Errorf("%s is too small to split into /%d subnets", prefix, size)
	}
	if index < 0 || index >= 1<<bits {
		return netip.Prefix{}, fmt.Errorf("subnet %d does not fit in %s", index, prefix)
	}

	b := prefix.Addr().As4()
	base := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	base += uint32(index) << (32 - size)
	addr := netip.AddrFrom4([4]byte{byte(base >> 24), byte(base >> 16), byte(base >> 8), byte(base)})
	return netip.PrefixFrom(addr, size), nil
}

// addNetwork adds a VPC spanning MaxAZs zones with one public and one
// private subnet per zone. Private subnets route out through NatGateways
// NAT gateways, assigned round-robin.
func addNetwork(t *cfn.Template, n model.Network) (*vpcLayout, error) {
	cidr, err := netip.ParsePrefix(n.CIDR)
	if err != nil {
		return nil, fmt.Errorf("network cidr: %w", err)
	}

	policy := cfn.PolicyDelete
	if n.RetainOnDestroy {
		policy = cfn.PolicyRetain
	}

	l := &vpcLayout{vpc: "Vpc", gateway: "VpcGatewayAttachment"}
	t.Add("Vpc", cfn.EC2VPC, cfn.Props{
		"CidrBlock":          cidr.Masked().String(),
		"EnableDnsHostnames": true,
		"EnableDnsSupport":   true,
		"Tags":               cfn.NameTags(cfn.Sub("${AWS::StackName}/Vpc")),
	}).WithRemoval(policy)

	t.Add("InternetGateway", cfn.EC2InternetGateway, cfn.Props{
		"Tags": cfn.NameTags(cfn.Sub("${AWS::StackName}/Vpc")),
	})
	t.Add("VpcGatewayAttachment", cfn.EC2VPCGatewayAttachment, cfn.Props{
		"VpcId":             cfn.Ref("Vpc"),
		"InternetGatewayId": cfn.Ref("InternetGateway"),
	})

	t.Add("PublicRouteTable", cfn.EC2RouteTable, cfn.Props{"VpcId": cfn.Ref("Vpc")})
	t.Add("PublicDefaultRoute", cfn.EC2Route, cfn.Props{
		"RouteTableId":         cfn.Ref("PublicRouteTable"),
		"DestinationCidrBlock": "0.0.0.0/0",
		"GatewayId":            cfn.Ref("InternetGateway"),
	}).DependOn("VpcGatewayAttachment")

	for i := 0; i < n.MaxAZs; i++ {
		public, err := carve(cidr, subnetBits, i)
		if err != nil {
			return nil, err
		}
		private, err := carve(cidr, subnetBits, n.MaxAZs+i)
		if err != nil {
			return nil, err
		}

		pub := fmt.Sprintf("PublicSubnet%d", i+1)
		t.Add(pub, cfn.EC2Subnet, cfn.Props{
			"VpcId":               cfn.Ref("Vpc"),
			"CidrBlock":           public.String(),
			"AvailabilityZone":    cfn.SelectAZ(i),
			"MapPublicIpOnLaunch": true,
			"Tags":                cfn.NameTags(cfn.Sub("${AWS::StackName}/" + pub)),
		}).WithRemoval(policy)
		t.Add(pub+"RouteTableAssociation", cfn.EC2SubnetRouteTableAssociation, cfn.Props{
			"SubnetId":     cfn.Ref(pub),
			"RouteTableId": cfn.Ref("PublicRouteTable"),
		})
		l.publicSubnets = append(l.publicSubnets, pub)

		priv := fmt.Sprintf("PrivateSubnet%d", i+1)
		t.Add(priv, cfn.EC2Subnet, cfn.Props{
			"VpcId":               cfn.Ref("Vpc"),
			"CidrBlock":           private.String(),
			"AvailabilityZone":    cfn.SelectAZ(i),
			"MapPublicIpOnLaunch": false,
			"Tags":                cfn.NameTags(cfn.Sub("${AWS::StackName}/" + priv)),
		}).WithRemoval(policy)
		l.privateSubnets = append(l.privateSubnets, priv)
	}

	for i := 0; i < n.NatGateways; i++ {
		eip := fmt.Sprintf("NatEip%d", i+1)
		nat := fmt.Sprintf("NatGateway%d", i+1)
		t.Add(eip, cfn.EC2EIP, cfn.Props{"Domain": "vpc"}).DependOn("VpcGatewayAttachment")
		t.Add(nat, cfn.EC2NatGateway, cfn.Props{
			"AllocationId": cfn.GetAtt(eip, "AllocationId"),
			"SubnetId":     cfn.Ref(l.publicSubnets[i]),
			"Tags":         cfn.NameTags(cfn.Sub("${AWS::StackName}/" + nat)),
		})
	}

	for i, priv := range l.privateSubnets {
		rt := priv + "RouteTable"
		t.Add(rt, cfn.EC2RouteTable, cfn.Props{"VpcId": cfn.Ref("Vpc")})
		t.Add(priv+"DefaultRoute", cfn.EC2Route, cfn.Props{
			"RouteTableId":         cfn.Ref(rt),
			"DestinationCidrBlock": "0.0.0.0/0",
			"NatGatewayId":         cfn.Ref(fmt.Sprintf("NatGateway%d", i%n.NatGateways+1)),
		})
		t.Add(priv+"RouteTableAssociation", cfn.EC2SubnetRouteTableAssociation, cfn.Props{
			"SubnetId":     cfn.Ref(priv),
			"RouteTableId": cfn.Ref(rt),
		})
	}

	return l, nil
}

func (l *vpcLayout) publicRefs() []any  { return cfn.Refs(l.publicSubnets...) }
func (l *vpcLayout) privateRefs() []any { return cfn.Refs(l.privateSubnets...) }
