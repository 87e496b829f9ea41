package integration

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/refdatahq/lookupd/test-integration/lookupd/helpers"
)

var _ = Describe("Declarative table persistence", Label("persistence"), func() {
	var (
		tempDir string
		dataDir string
	)

	BeforeEach(func() {
		tempDir = createTempDir("lookupd-persist-")
		dataDir = filepath.Join(tempDir, "data")
	})

	AfterEach(func() {
		cleanupTempDir(tempDir)
	})

	It("restores registered tables after a restart", func() {
		cfg := helpers.DirectoryConfig(tempDir, dataDir, false)

		server, err := helpers.StartServer(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.WaitForServerReady(10 * time.Second)).To(Succeed())

		status, _, err := server.Put("/api/v0/namespaces/billing/tables/plans", plansSpec)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))

		Expect(server.Stop()).To(Succeed())

		// Same data directory, fresh process state
		server, err = helpers.StartServer(ctx, helpers.DirectoryConfig(tempDir, dataDir, false))
		Expect(err).NotTo(HaveOccurred())
		Expect(server.WaitForServerReady(10 * time.Second)).To(Succeed())
		defer func() { Expect(server.Stop()).To(Succeed()) }()

		status, body, err := server.Get("/api/v0/tables/billing.plans")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var detail struct {
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			Loaded bool   `json:"loaded"`
			Rows   int    `json:"rows"`
		}
		Expect(json.Unmarshal(body, &detail)).To(Succeed())
		Expect(detail.Kind).To(Equal("declarative"))
		Expect(detail.Loaded).To(BeTrue())
		Expect(detail.Rows).To(Equal(2))

		status, body, err = server.Get("/api/v0/tables/billing.plans/lookup?key=basic")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var row map[string]string
		Expect(json.Unmarshal(body, &row)).To(Succeed())
		Expect(row["seats"]).To(Equal("5"))
	})
})
