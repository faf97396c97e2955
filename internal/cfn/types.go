package cfn

// ResourceType is a CloudFormation resource type identifier.
type ResourceType string

const (
	ECRRepository ResourceType = "AWS::ECR::Repository"

	EC2VPC                         ResourceType = "AWS::EC2::VPC"
	EC2Subnet                      ResourceType = "AWS::EC2::Subnet"
	EC2InternetGateway             ResourceType = "AWS::EC2::InternetGateway"
	EC2VPCGatewayAttachment        ResourceType = "AWS::EC2::VPCGatewayAttachment"
	EC2RouteTable                  ResourceType = "AWS::EC2::RouteTable"
	EC2Route                       ResourceType = "AWS::EC2::Route"
	EC2SubnetRouteTableAssociation ResourceType = "AWS::EC2::SubnetRouteTableAssociation"
	EC2EIP                         ResourceType = "AWS::EC2::EIP"
	EC2NatGateway                  ResourceType = "AWS::EC2::NatGateway"
	EC2SecurityGroup               ResourceType = "AWS::EC2::SecurityGroup"

	ECSCluster        ResourceType = "AWS::ECS::Cluster"
	ECSTaskDefinition ResourceType = "AWS::ECS::TaskDefinition"
	ECSService        ResourceType = "AWS::ECS::Service"

	LogsLogGroup ResourceType = "AWS::Logs::LogGroup"
	IAMRole      ResourceType = "AWS::IAM::Role"

	CertificateManagerCertificate ResourceType = "AWS::CertificateManager::Certificate"

	ElasticLoadBalancingLoadBalancer ResourceType = "AWS::ElasticLoadBalancingV2::LoadBalancer"
	ElasticLoadBalancingTargetGroup  ResourceType = "AWS::ElasticLoadBalancingV2::TargetGroup"
	ElasticLoadBalancingListener     ResourceType = "AWS::ElasticLoadBalancingV2::Listener"

	AutoScalingScalableTarget ResourceType = "AWS::ApplicationAutoScaling::ScalableTarget"
	AutoScalingScalingPolicy  ResourceType = "AWS::ApplicationAutoScaling::ScalingPolicy"

	Route53RecordSet ResourceType = "AWS::Route53::RecordSet"

	S3Bucket ResourceType = "AWS::S3::Bucket"

	CodeBuildProject     ResourceType = "AWS::CodeBuild::Project"
	CodePipelinePipeline ResourceType = "AWS::CodePipeline::Pipeline"
	CodePipelineWebhook  ResourceType = "AWS::CodePipeline::Webhook"
)

// Policy is a CloudFormation DeletionPolicy / UpdateReplacePolicy value.
type Policy string

const (
	PolicyDelete Policy = "Delete"
	PolicyRetain Policy = "Retain"
)
