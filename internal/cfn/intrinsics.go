package cfn

// Region is the pseudo parameter holding the stack's region.
const Region = "AWS::Region"

func Ref(id string) map[string]any {
	return map[string]any{"Ref": id}
}

func GetAtt(id, attr string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{id, attr}}
}

func Sub(s string) map[string]any {
	return map[string]any{"Fn::Sub": s}
}

func Join(sep string, parts ...any) map[string]any {
	return map[string]any{"Fn::Join": []any{sep, parts}}
}

// SelectAZ picks the i-th availability zone of the stack's region.
func SelectAZ(i int) map[string]any {
	return map[string]any{"Fn::Select": []any{i, map[string]any{"Fn::GetAZs": ""}}}
}

func Tag(key string, value any) map[string]any {
	return map[string]any{"Key": key, "Value": value}
}

// NameTags returns a Tags list carrying only a Name tag.
func NameTags(name any) []any {
	return []any{Tag("Name", name)}
}

// Refs turns logical IDs into a list of Ref expressions.
func Refs(ids ...string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = Ref(id)
	}
	return out
}

// SecretsManagerReference is the dynamic reference CloudFormation resolves
// at deploy time; the secret value never appears in the template.
func SecretsManagerReference(secretARN string) string {
	return "{{resolve:secretsmanager:" + secretARN + ":SecretString:::}}"
}
