package encode

import (
	"strconv"
)

// Parameter keys understood by the collection endpoint.
const (
	KeySearchTerm       = "is"
	KeyOrderValue       = "ov"
	KeyOrderId          = "oi"
	KeyCurrency         = "cr"
	KeyProductName      = "ba"
	KeyProductCost      = "co"
	KeyProductQuantity  = "qn"
	KeyProductStatus    = "st"
	KeyCampaignId       = "mc"
	KeyCampaignAction   = "mca"
	KeyCustomerId       = "cd"
	KeyEventName        = "ct"
	prefixPageParam     = "cp"
	prefixPageCategory  = "cg"
	prefixSessionParam  = "cs"
	prefixProductCat    = "ca"
	prefixECommerce     = "cb"
	prefixMediaCode     = "cc"
	prefixUserCategory  = "uc"
	prefixEventParam    = "ck"
	prefixMediaCategory = "mg"
)

// Named user category slots.
const (
	KeyBirthday             = "uc700"
	KeyCity                 = "uc701"
	KeyCountry              = "uc702"
	KeyEmailAddress         = "uc703"
	KeyEmailReceiverId      = "uc704"
	KeyFirstName            = "uc705"
	KeyGender               = "uc706"
	KeyLastName             = "uc707"
	KeyNewsletterSubscribed = "uc708"
	KeyPhoneNumber          = "uc709"
	KeyStreet               = "uc710"
	KeyStreetNumber         = "uc711"
	KeyZipCode              = "uc712"
)

// ParamGroup is implemented by every group of parameters that can be attached to an event.
type ParamGroup interface {
	Params() *Params
}

type PageParameters struct {
	Parameters map[int]string
	Categories map[int]string
	SearchTerm string
}

func (p *PageParameters) Params() *Params {
	out := NewParams()
	if p == nil {
		return out
	}
	putIndexed(out, prefixPageParam, p.Parameters)
	putIndexed(out, prefixPageCategory, p.Categories)
	putIfSet(out, KeySearchTerm, p.SearchTerm)
	return out
}

type SessionParameters struct {
	Parameters map[int]string
}

func (s *SessionParameters) Params() *Params {
	out := NewParams()
	if s == nil {
		return out
	}
	putIndexed(out, prefixSessionParam, s.Parameters)
	return out
}

type ProductStatus string

const (
	ProductViewed          ProductStatus = "view"
	ProductAddedToBasket   ProductStatus = "add"
	ProductPurchased       ProductStatus = "conf"
	ProductDeletedFromCart ProductStatus = "del"
	ProductAddedToWishlist ProductStatus = "add-wl"
	ProductCheckout        ProductStatus = "checkout"
)

type ECommerceParameters struct {
	OrderValue        *float64
	OrderId           string
	Currency          string
	ProductName       string
	ProductCost       *float64
	ProductQuantity   *int
	Status            ProductStatus
	ProductCategories map[int]string
	CustomParameters  map[int]string
}

func (e *ECommerceParameters) Params() *Params {
	out := NewParams()
	if e == nil {
		return out
	}
	if e.OrderValue != nil {
		out.Set(KeyOrderValue, formatFloat(*e.OrderValue))
	}
	putIfSet(out, KeyOrderId, e.OrderId)
	putIfSet(out, KeyCurrency, e.Currency)
	putIfSet(out, KeyProductName, e.ProductName)
	if e.ProductCost != nil {
		out.Set(KeyProductCost, formatFloat(*e.ProductCost))
	}
	if e.ProductQuantity != nil {
		out.Set(KeyProductQuantity, strconv.Itoa(*e.ProductQuantity))
	}
	putIfSet(out, KeyProductStatus, string(e.Status))
	putIndexed(out, prefixProductCat, e.ProductCategories)
	putIndexed(out, prefixECommerce, e.CustomParameters)
	return out
}

type CampaignAction string

const (
	CampaignClick CampaignAction = "c"
	CampaignView  CampaignAction = "v"
)

type CampaignParameters struct {
	CampaignId string
	Action     CampaignAction
	MediaCode  map[int]string
}

func (c *CampaignParameters) Params() *Params {
	out := NewParams()
	if c == nil {
		return out
	}
	putIfSet(out, KeyCampaignId, c.CampaignId)
	putIfSet(out, KeyCampaignAction, string(c.Action))
	putIndexed(out, prefixMediaCode, c.MediaCode)
	return out
}

type UserCategories struct {
	CustomerId           string
	Categories           map[int]string
	Birthday             string
	City                 string
	Country              string
	EmailAddress         string
	EmailReceiverId      string
	FirstName            string
	Gender               string
	LastName             string
	NewsletterSubscribed *bool
	PhoneNumber          string
	Street               string
	StreetNumber         string
	ZipCode              string
}

func (u *UserCategories) Params() *Params {
	out := NewParams()
	if u == nil {
		return out
	}
	putIfSet(out, KeyCustomerId, u.CustomerId)
	putIndexed(out, prefixUserCategory, u.Categories)
	putIfSet(out, KeyBirthday, u.Birthday)
	putIfSet(out, KeyCity, u.City)
	putIfSet(out, KeyCountry, u.Country)
	putIfSet(out, KeyEmailAddress, u.EmailAddress)
	putIfSet(out, KeyEmailReceiverId, u.EmailReceiverId)
	putIfSet(out, KeyFirstName, u.FirstName)
	putIfSet(out, KeyGender, u.Gender)
	putIfSet(out, KeyLastName, u.LastName)
	if u.NewsletterSubscribed != nil {
		out.Set(KeyNewsletterSubscribed, formatBool(*u.NewsletterSubscribed))
	}
	putIfSet(out, KeyPhoneNumber, u.PhoneNumber)
	putIfSet(out, KeyStreet, u.Street)
	putIfSet(out, KeyStreetNumber, u.StreetNumber)
	putIfSet(out, KeyZipCode, u.ZipCode)
	return out
}

type EventParameters struct {
	Parameters map[int]string
}

func (e *EventParameters) Params() *Params {
	out := NewParams()
	if e == nil {
		return out
	}
	putIndexed(out, prefixEventParam, e.Parameters)
	return out
}

// Event is anything that can be tracked: it has a request name and a parameter mapping.
type Event interface {
	Name() string
	Params() (*Params, error)
}

// merge folds custom and then the groups into one mapping. Later groups override earlier
// ones on key collisions and every group overrides custom, so the order of groups is part of
// the wire contract.
func merge(custom *Params, groups ...ParamGroup) *Params {
	out := NewParams()
	out.PutAll(custom)
	for _, g := range groups {
		out.PutAll(g.Params())
	}
	return out
}

type PageViewEvent struct {
	PageName         string
	CustomParameters *Params
	Page             *PageParameters
	Session          *SessionParameters
	ECommerce        *ECommerceParameters
	Campaign         *CampaignParameters
	User             *UserCategories
}

func (e *PageViewEvent) Name() string {
	return e.PageName
}

func (e *PageViewEvent) Params() (*Params, error) {
	return merge(e.CustomParameters, e.Page, e.Session, e.User, e.ECommerce, e.Campaign), nil
}

type CustomEvent struct {
	EventName        string
	CustomParameters *Params
	Event            *EventParameters
	Session          *SessionParameters
	ECommerce        *ECommerceParameters
	Campaign         *CampaignParameters
	User             *UserCategories
}

func (e *CustomEvent) Name() string {
	return e.EventName
}

func (e *CustomEvent) Params() (*Params, error) {
	return merge(e.CustomParameters, e.Event, e.Session, e.User, e.ECommerce, e.Campaign), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
