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

const countriesDoc = `
tables:
  - name: countries
    source:
      inline:
        rows:
          - {key: DE, name: Germany, continent: Europe}
          - {key: JP, name: Japan, continent: Asia}
`

const currenciesDoc = `
tables:
  - name: currencies
    source:
      inline:
        rows:
          - {key: EUR, name: Euro}
`

const plansSpec = `
name: plans
keyColumn: code
source:
  inline:
    rows:
      - {code: basic, seats: "5"}
      - {code: pro, seats: "50"}
`

var _ = Describe("Lookup API", Label("api"), func() {
	var (
		tempDir string
		dataDir string
		server  *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("lookupd-api-")
		dataDir = filepath.Join(tempDir, "data")

		Expect(helpers.WriteDefinitionFile(tempDir, "countries.yaml", countriesDoc)).To(Succeed())

		var err error
		server, err = helpers.StartServer(ctx, helpers.DirectoryConfig(tempDir, dataDir, true))
		Expect(err).NotTo(HaveOccurred())
		Expect(server.WaitForServerReady(10 * time.Second)).To(Succeed())
	})

	AfterEach(func() {
		Expect(server.Stop()).To(Succeed())
		cleanupTempDir(tempDir)
	})

	It("serves health, readiness and version", func() {
		status, _, err := server.Get("/readiness")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		status, body, err := server.Get("/version")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var info map[string]string
		Expect(json.Unmarshal(body, &info)).To(Succeed())
		Expect(info).To(HaveKey("version"))
	})

	It("lists and looks up tables loaded from the directory source", func() {
		status, body, err := server.Get("/api/v0/tables")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var listing struct {
			Tables []struct {
				Name   string `json:"name"`
				Loaded bool   `json:"loaded"`
			} `json:"tables"`
		}
		Expect(json.Unmarshal(body, &listing)).To(Succeed())
		Expect(listing.Tables).To(HaveLen(1))
		Expect(listing.Tables[0].Name).To(Equal("countries"))
		Expect(listing.Tables[0].Loaded).To(BeTrue())

		status, body, err = server.Get("/api/v0/tables/countries/lookup?key=JP")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var row map[string]string
		Expect(json.Unmarshal(body, &row)).To(Succeed())
		Expect(row["name"]).To(Equal("Japan"))

		status, _, err = server.Get("/api/v0/tables/countries/lookup?key=XX")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("registers, serves and unregisters a declarative table", func() {
		status, body, err := server.Put("/api/v0/namespaces/billing/tables/plans", plansSpec)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))

		var detail struct {
			Name string `json:"name"`
			Rows int    `json:"rows"`
		}
		Expect(json.Unmarshal(body, &detail)).To(Succeed())
		Expect(detail.Name).To(Equal("billing.plans"))
		Expect(detail.Rows).To(Equal(2))

		status, body, err = server.Get("/api/v0/tables/billing.plans/lookup?key=pro")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var row map[string]string
		Expect(json.Unmarshal(body, &row)).To(Succeed())
		Expect(row["seats"]).To(Equal("50"))

		// A second registration under the same name conflicts
		status, _, err = server.Put("/api/v0/namespaces/billing/tables/plans", plansSpec)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusConflict))

		status, err = server.Delete("/api/v0/namespaces/billing/tables/plans")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusNoContent))

		status, _, err = server.Get("/api/v0/tables/billing.plans")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("rejects invalid definitions", func() {
		status, _, err := server.Put("/api/v0/namespaces/billing/tables/broken", "bogus: [")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusBadRequest))
	})

	It("picks up definition files added to a watched directory", func() {
		Expect(helpers.WriteDefinitionFile(tempDir, "currencies.yaml", currenciesDoc)).To(Succeed())

		Eventually(func() int {
			status, _, err := server.Get("/api/v0/tables/currencies")
			if err != nil {
				return 0
			}
			return status
		}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))

		status, body, err := server.Get("/api/v0/tables/currencies/lookup?key=EUR")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		var row map[string]string
		Expect(json.Unmarshal(body, &row)).To(Succeed())
		Expect(row["name"]).To(Equal("Euro"))
	})

	It("evicts tables whose definition file is removed", func() {
		Expect(helpers.RemoveDefinitionFile(tempDir, "countries.yaml")).To(Succeed())

		Eventually(func() int {
			status, _, err := server.Get("/api/v0/tables/countries")
			if err != nil {
				return 0
			}
			return status
		}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusNotFound))
	})

	It("reloads tables on demand", func() {
		status, err := server.Post("/api/v0/reload")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		status, err = server.Post("/api/v0/tables/countries/reload")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
	})
})
