package ovpn

import (
	"context"
	"strings"
	"testing"

	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	templatePath = "/etc/openvpn/server/client-common.txt"
	outputDir    = "/root/ovpns"
	inlineDir    = "/etc/openvpn/server/easy-rsa/pki/inline/private"
)

func newTestAssembler(t *testing.T) (*Assembler, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	a := NewAssembler(fs, Options{
		TemplatePath: templatePath,
		OutputDir:    outputDir,
		InlinePath: func(username string) string {
			return inlineDir + "/" + username + ".inline"
		},
	}, logging.Discard())
	return a, fs
}

func TestAssemble_TemplateAndInline(t *testing.T) {
	a, fs := newTestAssembler(t)

	template := "client\n# managed by openvpn-install\ndev tun\nproto udp\nremote vpn.example.org 1194\n"
	inline := "<ca>\nMIIB\n</ca>\n"
	require.NoError(t, afero.WriteFile(fs, templatePath, []byte(template), 0o644))
	require.NoError(t, afero.WriteFile(fs, inlineDir+"/alice.inline", []byte(inline), 0o600))

	path, err := a.Assemble(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, outputDir+"/alice.ovpn", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		"client",
		"dev tun",
		"proto udp",
		"remote vpn.example.org 1194",
		"<ca>",
		"MIIB",
		"</ca>",
	}, lines)
}

func TestAssemble_MissingInlineIsTemplateOnly(t *testing.T) {
	a, fs := newTestAssembler(t)
	require.NoError(t, afero.WriteFile(fs, templatePath, []byte("client\n#x\ndev tun\n"), 0o644))

	path, err := a.Assemble(context.Background(), "bob")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "client\ndev tun\n", string(data))
}

func TestAssemble_TemplateWithoutTrailingNewline(t *testing.T) {
	a, fs := newTestAssembler(t)
	require.NoError(t, afero.WriteFile(fs, templatePath, []byte("client\ndev tun"), 0o644))
	require.NoError(t, afero.WriteFile(fs, inlineDir+"/carol.inline", []byte("<key>\n</key>\n"), 0o600))

	path, err := a.Assemble(context.Background(), "carol")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "client\ndev tun\n<key>\n</key>\n", string(data))
}

func TestAssemble_TemplateMissing(t *testing.T) {
	a, fs := newTestAssembler(t)

	_, err := a.Assemble(context.Background(), "alice")
	require.ErrorIs(t, err, ErrTemplateMissing)

	// output dir is created even when assembly fails
	ok, err := afero.DirExists(fs, outputDir)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := afero.Exists(fs, outputDir+"/alice.ovpn")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAssemble_LeavesNoTempFiles(t *testing.T) {
	a, fs := newTestAssembler(t)
	require.NoError(t, afero.WriteFile(fs, templatePath, []byte("client\n"), 0o644))

	_, err := a.Assemble(context.Background(), "alice")
	require.NoError(t, err)

	entries, err := afero.ReadDir(fs, outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice.ovpn", entries[0].Name())
}
