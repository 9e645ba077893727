package portal

import "time"

const (
	DefaultLoginURL    = "https://auth.afip.gob.ar/contribuyente_/login.xhtml"
	DefaultServiceName = "Mis Comprobantes"
)

// Selectors locates every element the pipeline interacts with. They are
// configurable so that portal layout drift can be patched without touching
// the pipeline logic.
type Selectors struct {
	LoginId       string `json:"loginId"`
	LoginNext     string `json:"loginNext"`
	LoginPassword string `json:"loginPassword"`
	LoginSubmit   string `json:"loginSubmit"`
	LoginError    string `json:"loginError"`
	Captcha       string `json:"captcha"`

	ServiceLink   string `json:"serviceLink"`
	SearchBox     string `json:"searchBox"`
	SearchResult  string `json:"searchResult"`
	AccountHeader string `json:"accountHeader"`
	CompanyButton string `json:"companyButton"`
	QueriesLink   string `json:"queriesLink"`

	QueryForm    string `json:"queryForm"`
	DateFrom     string `json:"dateFrom"`
	DateTo       string `json:"dateTo"`
	PointOfSale  string `json:"pointOfSale"`
	DocumentType string `json:"documentType"`
	RoleIssued   string `json:"roleIssued"`
	RoleReceived string `json:"roleReceived"`
	SearchButton string `json:"searchButton"`

	NoResults    string `json:"noResults"`
	ResultsTable string `json:"resultsTable"`
	ResultRows   string `json:"resultRows"`
	// DownloadButton may contain {number}, replaced by the record's full number.
	DownloadButton string `json:"downloadButton"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		LoginId:       "#F1\\:username",
		LoginNext:     "#F1\\:btnSiguiente",
		LoginPassword: "#F1\\:password",
		LoginSubmit:   "#F1\\:btnIngresar",
		LoginError:    "#F1\\:msg, .alert-danger, span.text-danger",
		Captcha:       "#captcha, .g-recaptcha, iframe[src*='recaptcha'], iframe[src*='hcaptcha']",

		ServiceLink:   "a[title='mcmp'], a[href*='mcmp']",
		SearchBox:     "#buscadorInput",
		SearchResult:  "#resBusqueda li a, .ui-menu-item a",
		AccountHeader: "#cuitLogueado, .navbar-text strong",
		CompanyButton: "form[name='seleccionaEmpresaForm'] input[type='button'], .btn-select-empresa",
		QueriesLink:   "#btnConsultas, a[href*='comprobantesConsulta']",

		QueryForm:    "#formConsulta",
		DateFrom:     "#fechaDesde",
		DateTo:       "#fechaHasta",
		PointOfSale:  "#puntoVenta",
		DocumentType: "#tipoComprobante",
		RoleIssued:   "#radioEmitidos",
		RoleReceived: "#radioRecibidos",
		SearchButton: "#buscarComprobantes",

		NoResults:      "#tablaDataTables .dataTables_empty",
		ResultsTable:   "#tablaDataTables",
		ResultRows:     "#tablaDataTables tbody tr",
		DownloadButton: "[data-comprobante='{number}'] .btn-xml, a.btn-xml[data-comprobante='{number}']",
	}
}

// Columns maps the results table layout onto record fields.
type Columns struct {
	Date          int `json:"date"`
	Type          int `json:"type"`
	Number        int `json:"number"`
	Authorization int `json:"authorization"`
	Issuer        int `json:"issuer"`
	Receiver      int `json:"receiver"`
	Currency      int `json:"currency"`
	Total         int `json:"total"`
}

func DefaultColumns() Columns {
	return Columns{
		Date:          0,
		Type:          1,
		Number:        2,
		Authorization: 3,
		Issuer:        4,
		Receiver:      5,
		Currency:      6,
		Total:         7,
	}
}

type Timeouts struct {
	// Run bounds a whole pipeline run, including teardown.
	Run time.Duration
	// Step bounds waits for a single element or page transition.
	Step time.Duration
	// LoginOutcome bounds the race between navigation and an inline error.
	LoginOutcome time.Duration
	// NewTab bounds the wait for a tab opened by the service link.
	NewTab   time.Duration
	Download time.Duration
	// Settle is slept after the results report network idleness.
	Settle time.Duration
	// AttachmentPacing is slept between attachment downloads.
	AttachmentPacing time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Run:              3 * time.Minute,
		Step:             20 * time.Second,
		LoginOutcome:     15 * time.Second,
		NewTab:           8 * time.Second,
		Download:         15 * time.Second,
		Settle:           1500 * time.Millisecond,
		AttachmentPacing: 750 * time.Millisecond,
	}
}
