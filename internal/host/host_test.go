package host

import (
	"testing"
)

func TestPlatformSelection(t *testing.T) {
	tests := []struct {
		name     string
		tag      string
		declared Values
		want     string
	}{
		{name: "plain unix", tag: "el-9-x86_64", want: "unix"},
		{name: "empty tag", tag: "", want: "unix"},
		{name: "windows cygwin default", tag: "windows-2019-64", want: "windows"},
		{name: "windows native", tag: "windows-2019-64", declared: Values{"cygwin": false}, want: "windows-native"},
		{name: "case insensitive", tag: "Windows-2019", want: "windows"},
		{name: "aix", tag: "aix-7.2-power", want: "aix"},
		{name: "osx", tag: "osx-14-arm64", want: "osx"},
		{name: "mac alias", tag: "macos-14", want: "osx"},
		{name: "freebsd", tag: "freebsd-14-amd64", want: "freebsd"},
		{name: "eos", tag: "eos-4-i386", want: "eos"},
		{name: "cisco", tag: "cisco_nexus-9k", want: "cisco"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			declared := Values{KeyPlatform: tt.tag}
			for k, v := range tt.declared {
				declared[k] = v
			}
			h := New("box1", declared, nil)
			if h.Platform.Name != tt.want {
				t.Errorf("platform = %q, want %q", h.Platform.Name, tt.want)
			}
		})
	}
}

func TestNewMergesDefaultsUnderDeclared(t *testing.T) {
	h := New("sw1", Values{KeyPlatform: "cisco_nexus", KeyUser: "operator"}, nil)
	if got := h.User(); got != "operator" {
		t.Errorf("declared user should win over platform default, got %q", got)
	}

	h = New("sw2", Values{KeyPlatform: "cisco_nexus"}, nil)
	if got := h.User(); got != "admin" {
		t.Errorf("cisco default user = %q, want admin", got)
	}
}

func TestNewCopiesConfiguration(t *testing.T) {
	declared := Values{KeyPlatform: "el-9", KeyKeys: []string{"/tmp/key1"}}
	global := Values{"forge": "https://forge.example"}

	h := New("box1", declared, global)

	declared[KeyPlatform] = "windows"
	declared[KeyKeys].([]string)[0] = "/tmp/mutated"
	global["forge"] = "mutated"

	if got := h.Settings().String(KeyPlatform); got != "el-9" {
		t.Errorf("platform mutated through caller map: %q", got)
	}
	if got := h.Keys(); got[0] != "/tmp/key1" {
		t.Errorf("keys mutated through caller slice: %v", got)
	}
	if got := h.Settings().String("forge"); got != "https://forge.example" {
		t.Errorf("global mutated through caller map: %q", got)
	}
}

func TestIdentityAccessors(t *testing.T) {
	h := New("box1", Values{KeyPlatform: "el-9"}, nil)

	if got := h.Hostname(); got != "box1" {
		t.Errorf("Hostname = %q, want box1", got)
	}
	if got := h.ReachableAddress(); got != "box1" {
		t.Errorf("ReachableAddress = %q, want box1", got)
	}

	h.VMHostname = "box1.vm.example"
	if got := h.Hostname(); got != "box1.vm.example" {
		t.Errorf("Hostname = %q, want override", got)
	}

	h.IP = "10.0.0.5"
	if got := h.ReachableAddress(); got != "10.0.0.5" {
		t.Errorf("ReachableAddress = %q, want ip", got)
	}
}

func TestIdentityFromConfig(t *testing.T) {
	h := New("box1", Values{KeyIP: "192.0.2.7", KeyVMHostname: "vm7"}, nil)
	if h.IP != "192.0.2.7" {
		t.Errorf("IP = %q", h.IP)
	}
	if h.VMHostname != "vm7" {
		t.Errorf("VMHostname = %q", h.VMHostname)
	}
}

func TestLocal(t *testing.T) {
	tests := []struct {
		name       string
		hostName   string
		hypervisor string
		want       bool
	}{
		{"localhost with none", "localhost", "none", true},
		{"localhost with vm hypervisor", "localhost", "vagrant", false},
		{"localhost with unset hypervisor", "localhost", "", false},
		{"other name with none", "box1", "none", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			declared := Values{}
			if tt.hypervisor != "" {
				declared[KeyHypervisor] = tt.hypervisor
			}
			h := New(tt.hostName, declared, nil)
			if got := h.Local(); got != tt.want {
				t.Errorf("Local() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserDefaultsToRoot(t *testing.T) {
	h := New("box1", Values{}, nil)
	if got := h.User(); got != "root" {
		t.Errorf("User = %q, want root", got)
	}
}

func TestScpRootPath(t *testing.T) {
	tests := []struct {
		name   string
		tag    string
		target string
		extra  Values
		want   string
	}{
		{name: "unix identity", tag: "el-9", target: "/opt/suite", want: "/opt/suite"},
		{name: "cygwin drive", tag: "windows", target: `C:\Users\tmp`, want: "/cygdrive/c/Users/tmp"},
		{name: "cygwin plain", tag: "windows", target: "/tmp/suite", want: "/tmp/suite"},
		{name: "native backslashes", tag: "windows", extra: Values{"cygwin": false}, target: "C:/Users/tmp", want: `C:\Users\tmp`},
		{name: "eos relative to flash", tag: "eos", target: "image.swix", want: "/mnt/flash/image.swix"},
		{name: "eos absolute untouched", tag: "eos", target: "/tmp/x", want: "/tmp/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			declared := Values{KeyPlatform: tt.tag}
			for k, v := range tt.extra {
				declared[k] = v
			}
			h := New("box1", declared, nil)
			if got := h.Platform.ScpRootPath(h, tt.target); got != tt.want {
				t.Errorf("ScpRootPath(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestPostCopyCommand(t *testing.T) {
	h := New("sw1", Values{KeyPlatform: "cisco_nexus"}, nil)
	want := "chown -R admin /bootflash/suite"
	if got := h.Platform.PostCopyCommand(h, "/bootflash/suite"); got != want {
		t.Errorf("PostCopyCommand = %q, want %q", got, want)
	}

	h = New("box1", Values{KeyPlatform: "el-9"}, nil)
	if got := h.Platform.PostCopyCommand(h, "/opt"); got != "" {
		t.Errorf("unix PostCopyCommand = %q, want none", got)
	}
}
