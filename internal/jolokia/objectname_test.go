package jolokia

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseProperties(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{
			"plain values with spaces",
			"name=PS Old Gen,type=MemoryPool",
			map[string]string{"name": "PS Old Gen", "type": "MemoryPool"},
		},
		{
			"quoted value keeps quotes",
			`context=camel-1,type=routes,name="simple-route"`,
			map[string]string{"context": "camel-1", "type": "routes", "name": `"simple-route"`},
		},
		{
			"comma inside quotes",
			`type=queue,name="a,b"`,
			map[string]string{"type": "queue", "name": `"a,b"`},
		},
		{
			"escaped quote inside quotes",
			`name="say \"hi\", twice",type=x`,
			map[string]string{"name": `"say \"hi\", twice"`, "type": "x"},
		},
		{
			"value containing equals",
			"filter=a=b,type=x",
			map[string]string{"filter": "a=b", "type": "x"},
		},
		{
			"empty",
			"",
			map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseProperties(tt.in)); diff != "" {
				t.Errorf("ParseProperties(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestObjectNameSameAs(t *testing.T) {
	a, err := ParseObjectName("java.lang:type=MemoryPool,name=PS Old Gen")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ParseObjectName("java.lang:name=PS Old Gen,type=MemoryPool")
	c, _ := ParseObjectName("java.lang:name=PS Eden Space,type=MemoryPool")

	if !a.SameAs(b) {
		t.Error("property order should not matter")
	}
	if a.SameAs(c) {
		t.Error("different values compared equal")
	}
	if a.String() != "java.lang:type=MemoryPool,name=PS Old Gen" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestParseObjectNameInvalid(t *testing.T) {
	for _, in := range []string{"", "no-colon", ":type=x"} {
		if _, err := ParseObjectName(in); err == nil {
			t.Errorf("ParseObjectName(%q) succeeded", in)
		}
	}
}

func TestFormatProperties(t *testing.T) {
	props := map[string]string{"queue": "q1", "broker": "b", "component": "addresses", "zeta": "z", "alpha": "a"}
	got := FormatProperties(props, []string{"broker", "component", "address", "queue"})
	want := "broker=b,component=addresses,queue=q1,alpha=a,zeta=z"
	if got != want {
		t.Errorf("FormatProperties = %q, want %q", got, want)
	}
}

func TestIsSecurityMBean(t *testing.T) {
	if !IsSecurityMBean(RBACMBean) || !IsSecurityMBean(RBACRegistryMBean) {
		t.Error("gateway MBeans not recognised")
	}
	if IsSecurityMBean("java.lang:type=Memory") || IsSecurityMBean("hawtio:type=plugin") {
		t.Error("unrelated MBean recognised as security MBean")
	}
}

func TestOperationsObjectOrArray(t *testing.T) {
	raw := `{
		"gc": {"args": [], "ret": "void", "desc": "Run GC"},
		"update": [
			{"args": [], "ret": "void"},
			{"args": [{"name": "p1", "type": "java.lang.String"}], "ret": "void"}
		]
	}`
	var ops Operations
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(ops["gc"]) != 1 || len(ops["update"]) != 2 {
		t.Fatalf("unexpected overload counts: %d, %d", len(ops["gc"]), len(ops["update"]))
	}
	if got := ops["update"][1].Signature("update"); got != "update(java.lang.String)" {
		t.Errorf("Signature = %q", got)
	}
	if got := ops["gc"][0].Signature("gc"); got != "gc()" {
		t.Errorf("Signature = %q", got)
	}

	out, err := json.Marshal(ops)
	if err != nil {
		t.Fatal(err)
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(out, &shape); err != nil {
		t.Fatal(err)
	}
	if shape["gc"][0] != '{' || shape["update"][0] != '[' {
		t.Errorf("overload shape not preserved: %s", out)
	}
}

func TestMBeanInfoDeepCopy(t *testing.T) {
	yes := true
	orig := &MBeanInfo{
		Attr: map[string]*AttrInfo{"Verbose": {Type: "boolean", RW: true, CanInvoke: &yes}},
		Op:   Operations{"gc": {{Args: []ArgInfo{}}}},
	}
	cp := orig.DeepCopy()
	*cp.Attr["Verbose"].CanInvoke = false
	cp.Op["gc"][0].Ret = "void"
	if !*orig.Attr["Verbose"].CanInvoke || orig.Op["gc"][0].Ret != "" {
		t.Error("DeepCopy shares state with the original")
	}
}
