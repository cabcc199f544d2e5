package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chauffe/internal/cloudmanager"
	"chauffe/internal/cloudmanager/cloudmanagertest"
	"chauffe/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "123e4567-e89b-12d3-a456-426614174000"

func packedDLOID(quantity uint64) string {
	return fmt.Sprintf("%010dLYN5%09dYP", quantity, 700)
}

// setupCLI points the globals at baseURL and returns a command whose output
// is captured.
func setupCLI(t *testing.T, baseURL string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cfg = config.DefaultConfig()
	cfg.CloudManager.BaseURL = baseURL
	cfg.Cache.DatabasePath = filepath.Join(t.TempDir(), "cache.db")
	jsonOutput = true
	createOpts = createOptions{}
	aggregateFile = ""
	summaryRefresh = false
	t.Cleanup(func() {
		cfg = nil
		jsonOutput = false
		createOpts = createOptions{}
		aggregateFile = ""
		summaryRefresh = false
	})

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	return m
}

func TestAggregateCmd(t *testing.T) {
	cmd, buf := setupCLI(t, "http://unused")

	err := runAggregate(cmd, []string{packedDLOID(100000), packedDLOID(50000), "bad"})
	require.NoError(t, err)

	out := decode(t, buf)
	assert.EqualValues(t, 150000, out["total"])
	assert.EqualValues(t, 2, out["counted"])
	assert.EqualValues(t, 1, out["skipped"])
}

func TestAggregateCmd_JSONFile(t *testing.T) {
	cmd, buf := setupCLI(t, "http://unused")
	path := filepath.Join(t.TempDir(), "records.json")
	content := fmt.Sprintf(`[%q, {"chauffeQuantity": 25000, "partnershipStatus": "N", "collateralizable": "N",
		"inheritance": "N", "convertibility": 0, "rating": 0, "shareEligible": "N", "redeemability": "M"}]`,
		packedDLOID(150000))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	aggregateFile = path

	require.NoError(t, runAggregate(cmd, nil))
	out := decode(t, buf)
	assert.EqualValues(t, 175000, out["total"])
}

func TestAggregateCmd_NoRecords(t *testing.T) {
	cmd, _ := setupCLI(t, "http://unused")
	assert.Error(t, runAggregate(cmd, nil))
}

func TestReadRecords_Lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.txt")
	content := "# exported from the webapp\n" + packedDLOID(1) + "\r\n\n" + packedDLOID(2) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	lines, raws, err := readRecords(path)
	require.NoError(t, err)
	assert.Nil(t, raws)
	assert.Equal(t, []string{packedDLOID(1), packedDLOID(2)}, lines)

	_, _, err = readRecords(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestHealthCmd(t *testing.T) {
	srv := cloudmanagertest.New("1.1.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)

	require.NoError(t, runHealth(cmd, nil))
	out := decode(t, buf)
	assert.Equal(t, "compatible", out["state"])
	assert.Equal(t, "1.1.0", out["version"])
}

func TestHealthCmd_Unavailable(t *testing.T) {
	srv := cloudmanagertest.New("1.1.0")
	url := srv.URL
	srv.Close()
	cmd, _ := setupCLI(t, url)

	assert.Error(t, runHealth(cmd, nil))
}

func TestHealthCmd_CompatibilityFile(t *testing.T) {
	srv := cloudmanagertest.New("3.0.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)

	file := filepath.Join(t.TempDir(), "compat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("versions:\n  - 3.0.0\n"), 0644))
	cfg.Compatibility.File = file

	require.NoError(t, runHealth(cmd, nil))
	assert.Equal(t, "compatible", decode(t, buf)["state"])
}

func TestListCmd(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	srv.AddChain(cloudmanagertest.Chain{ID: "bc-1", OwnerID: testOwner})
	cmd, buf := setupCLI(t, srv.URL)

	require.NoError(t, runList(cmd, nil))
	out := decode(t, buf)
	assert.EqualValues(t, 1, out["count"])
}

func TestCreateCmd(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)

	assert.Error(t, runCreate(cmd, nil), "--dloid is required")

	createOpts = createOptions{owner: testOwner, firstName: "Ada", dloid: "short"}
	assert.Error(t, runCreate(cmd, nil))
	assert.Empty(t, srv.Created())

	createOpts.dloid = packedDLOID(42)
	require.NoError(t, runCreate(cmd, nil))
	out := decode(t, buf)
	assert.Equal(t, "bc-001", out["BlockchainID"])
	assert.Equal(t, false, out["Warning"])
	require.Len(t, srv.Created(), 1)
}

func TestCreateCmd_MissingOwner(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	cmd, _ := setupCLI(t, srv.URL)

	createOpts = createOptions{dloid: packedDLOID(1)}
	err := runCreate(cmd, nil)
	assert.ErrorIs(t, err, cloudmanager.ErrValidation)
	assert.Zero(t, srv.Requests("POST /api/blockchains"))
}

func TestGenerateNameCmd(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)
	jsonOutput = false
	nameOpts = cloudmanager.ControllerNameRequest{FirstName: "ada", LastName: "l"}
	defer func() { nameOpts = cloudmanager.ControllerNameRequest{} }()

	require.NoError(t, runGenerateName(cmd, nil))
	assert.Equal(t, "ADAL-CTRL\n", buf.String())
}

func TestSummaryCmd_Cache(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	srv.AddChain(cloudmanagertest.Chain{ID: "bc-1", OwnerID: testOwner, DLOID: packedDLOID(100000), Length: 2})
	srv.AddChain(cloudmanagertest.Chain{ID: "bc-2", OwnerID: testOwner, DLOID: packedDLOID(75000), Length: 1})
	cmd, buf := setupCLI(t, srv.URL)

	require.NoError(t, runSummary(cmd, []string{testOwner}))
	assert.EqualValues(t, 175000, decode(t, buf)["total_chauffecoins"])
	assert.Equal(t, 1, srv.Requests("GET /api/blockchains/bc-1"))
	assert.Equal(t, 1, srv.Requests("GET /api/blockchains"), "one listing serves fingerprint and summary")

	buf.Reset()
	require.NoError(t, runSummary(cmd, []string{testOwner}))
	assert.EqualValues(t, 175000, decode(t, buf)["total_chauffecoins"])
	assert.Equal(t, 1, srv.Requests("GET /api/blockchains/bc-1"), "second run is served from cache")

	// A new blockchain changes the listing fingerprint.
	srv.AddChain(cloudmanagertest.Chain{ID: "bc-3", OwnerID: testOwner, DLOID: packedDLOID(1)})
	buf.Reset()
	require.NoError(t, runSummary(cmd, []string{testOwner}))
	assert.EqualValues(t, 175001, decode(t, buf)["total_chauffecoins"])
	assert.Equal(t, 2, srv.Requests("GET /api/blockchains/bc-1"))

	summaryRefresh = true
	buf.Reset()
	require.NoError(t, runSummary(cmd, []string{testOwner}))
	assert.Equal(t, 3, srv.Requests("GET /api/blockchains/bc-1"))
}

func TestSummaryCmd_RejectsBadOwner(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	cmd, _ := setupCLI(t, srv.URL)

	err := runSummary(cmd, []string{"not-a-uuid"})
	assert.ErrorIs(t, err, cloudmanager.ErrValidation)
	assert.Zero(t, srv.Requests("GET /api/blockchains"))
}

func TestSummaryCmd_CacheDisabled(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	srv.AddChain(cloudmanagertest.Chain{ID: "bc-1", OwnerID: testOwner, DLOID: packedDLOID(5)})
	cmd, buf := setupCLI(t, srv.URL)
	cfg.Cache.Enabled = false

	require.NoError(t, runSummary(cmd, []string{testOwner}))
	assert.EqualValues(t, 5, decode(t, buf)["total_chauffecoins"])
	_, err := os.Stat(cfg.Cache.DatabasePath)
	assert.True(t, os.IsNotExist(err))
}

func TestListingFingerprint_IgnoresOtherOwners(t *testing.T) {
	mine := cloudmanager.Blockchain{ID: "a", OwnerID: testOwner, DLOID: json.RawMessage(`"x"`)}
	other := cloudmanager.Blockchain{ID: "b", OwnerID: "someone-else"}

	a, err := listingFingerprint([]cloudmanager.Blockchain{mine}, testOwner)
	require.NoError(t, err)
	b, err := listingFingerprint([]cloudmanager.Blockchain{mine, other}, testOwner)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSmokeCmd(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)

	require.NoError(t, runSmoke(cmd, nil))
	out := decode(t, buf)
	assert.Equal(t, "success", out["overall"])
	assert.EqualValues(t, 3, out["passed"])
}

func TestSmokeCmd_CompatibilityFile(t *testing.T) {
	srv := cloudmanagertest.New("3.0.0")
	defer srv.Close()
	cmd, buf := setupCLI(t, srv.URL)

	file := filepath.Join(t.TempDir(), "compat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("versions:\n  - 3.0.0\n"), 0644))
	cfg.Compatibility.Versions = nil
	cfg.Compatibility.File = file

	require.NoError(t, runSmoke(cmd, nil))
	verdict := decode(t, buf)["verdict"].(map[string]any)
	assert.Equal(t, "compatible", verdict["state"])

	cfg.Compatibility.File = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, runSmoke(cmd, nil))
}

func TestSmokeCmd_FailureReturnsError(t *testing.T) {
	srv := cloudmanagertest.New("1.0.0")
	url := srv.URL
	srv.Close()
	cmd, buf := setupCLI(t, url)
	jsonOutput = false

	assert.Error(t, runSmoke(cmd, nil))
	assert.Contains(t, buf.String(), "FAILURE")
}

func TestConfigInitCmd(t *testing.T) {
	cmd, buf := setupCLI(t, "http://cloudmanager:5000")
	configPath = filepath.Join(t.TempDir(), "conf", "chauffe.yaml")
	defer func() {
		configPath = "chauffe.yaml"
		configInitForce = false
	}()
	t.Setenv("CLOUDMANAGER_API_URL", "")

	require.NoError(t, runConfigInit(cmd, nil))
	assert.Contains(t, buf.String(), "Wrote")

	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "http://cloudmanager:5000", loaded.CloudManager.BaseURL)

	assert.Error(t, runConfigInit(cmd, nil), "existing file is not overwritten")
	configInitForce = true
	assert.NoError(t, runConfigInit(cmd, nil))
}

func TestRootPreRun_FlagOverrides(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "absent.yaml")
	baseURL = "http://override:5000"
	defer func() {
		configPath = "chauffe.yaml"
		baseURL = ""
		cfg = nil
	}()
	t.Setenv("CLOUDMANAGER_API_URL", "")

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	assert.Equal(t, "http://override:5000", cfg.CloudManager.BaseURL)

	baseURL = "ftp://nope"
	assert.Error(t, rootCmd.PersistentPreRunE(rootCmd, nil))
}
