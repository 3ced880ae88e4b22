package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	vnpVersion      = "2.1.0"
	vnpCommand      = "pay"
	vnpCurrency     = "VND"
	vnpOrderType    = "other"
	vnpSuccessCode  = "00"
	vnpDateLayout   = "20060102150405"
	secureHashKey   = "vnp_SecureHash"
	secureHashType  = "vnp_SecureHashType"
	paymentLifetime = 15 * time.Minute
)

var (
	ErrInvalidSignature = errors.New("invalid payment gateway signature")
	ErrMalformedReturn  = errors.New("malformed payment gateway response")
)

// vnpLocation is the gateway's clock (GMT+7).
var vnpLocation = time.FixedZone("Asia/Ho_Chi_Minh", 7*60*60)

type VNPayConfig struct {
	TmnCode    string `yaml:"tmn_code"`
	HashSecret string `yaml:"hash_secret"`
	PayURL     string `yaml:"pay_url"`
	ReturnURL  string `yaml:"return_url"`
	Locale     string `yaml:"locale"`
}

type PaymentRequest struct {
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

// ReturnResult is the verified outcome the gateway redirected the customer back with.
type ReturnResult struct {
	OrderID       uuid.UUID       `json:"order_id"`
	Paid          bool            `json:"paid"`
	ResponseCode  string          `json:"response_code"`
	TransactionNo string          `json:"transaction_no,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
}

type VNPay struct {
	cfg VNPayConfig
}

func NewVNPay(cfg VNPayConfig) *VNPay {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	return &VNPay{cfg: cfg}
}

// PaymentURL builds the signed redirect to the gateway. Amounts are sent in
// hundredths of a dong.
func (v *VNPay) PaymentURL(req PaymentRequest) (string, error) {
	base, err := url.Parse(v.cfg.PayURL)
	if err != nil {
		return "", fmt.Errorf("invalid pay url: %w", err)
	}

	created := req.CreatedAt.In(vnpLocation)
	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set("vnp_Amount", req.Amount.Mul(decimal.NewFromInt(100)).Round(0).String())
	params.Set("vnp_CurrCode", vnpCurrency)
	params.Set("vnp_TxnRef", req.OrderID.String())
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", vnpOrderType)
	params.Set("vnp_Locale", v.cfg.Locale)
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", created.Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", created.Add(paymentLifetime).Format(vnpDateLayout))

	// Encode sorts by key, which is the order the gateway signs in
	signed := params.Encode()
	base.RawQuery = signed + "&" + secureHashKey + "=" + v.sign(signed)
	return base.String(), nil
}

// VerifyReturn checks the signature of the query the gateway appended to the return URL.
func (v *VNPay) VerifyReturn(query url.Values) (*ReturnResult, error) {
	got := query.Get(secureHashKey)
	if got == "" {
		return nil, ErrInvalidSignature
	}

	params := url.Values{}
	for key, values := range query {
		if key == secureHashKey || key == secureHashType {
			continue
		}
		params[key] = values
	}

	expected, err := hex.DecodeString(v.sign(params.Encode()))
	if err != nil {
		return nil, err
	}
	actual, err := hex.DecodeString(got)
	if err != nil || !hmac.Equal(expected, actual) {
		return nil, ErrInvalidSignature
	}

	orderID, err := uuid.Parse(params.Get("vnp_TxnRef"))
	if err != nil {
		return nil, fmt.Errorf("%w: vnp_TxnRef: %v", ErrMalformedReturn, err)
	}
	hundredths, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: vnp_Amount: %v", ErrMalformedReturn, err)
	}

	code := params.Get("vnp_ResponseCode")
	return &ReturnResult{
		OrderID:       orderID,
		Paid:          code == vnpSuccessCode,
		ResponseCode:  code,
		TransactionNo: params.Get("vnp_TransactionNo"),
		Amount:        decimal.New(hundredths, -2),
	}, nil
}

func (v *VNPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
