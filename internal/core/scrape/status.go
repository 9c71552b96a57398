package scrape

import "net/http"

// ステータス集計のメッセージ
const (
	MessageSuccess        = "Operation has been completed successfully."
	MessagePartialSuccess = "Some pages could not be processed."
	MessageAllFailed      = "None of the pages could be processed."
	MessageNoPages        = "No pages to process."
	MessageFetched        = "Page content successfully extracted."
)

// PageStatus は1URLの処理結果
type PageStatus struct {
	URL     string
	Code    int
	Message string
}

// BatchReport はバッチ実行全体の結果。URLごとの状態と集計を持ちます。
type BatchReport struct {
	Pages []PageStatus
}

// NewBatchReport は空のレポートを作成します
func NewBatchReport() *BatchReport {
	return &BatchReport{}
}

// Add はURLの処理結果を記録します
func (r *BatchReport) Add(url string, code int, message string) {
	r.Pages = append(r.Pages, PageStatus{URL: url, Code: code, Message: message})
}

// Set は記録済みURLの結果を上書きします（未記録なら追加）
func (r *BatchReport) Set(url string, code int, message string) {
	for i := range r.Pages {
		if r.Pages[i].URL == url {
			r.Pages[i].Code = code
			r.Pages[i].Message = message
			return
		}
	}
	r.Add(url, code, message)
}

// Status は記録済みURLの結果を返します
func (r *BatchReport) Status(url string) (PageStatus, bool) {
	for _, p := range r.Pages {
		if p.URL == url {
			return p, true
		}
	}
	return PageStatus{}, false
}

// Succeeded はURLの処理が成功扱いかを返します
func (r *BatchReport) Succeeded(url string) bool {
	s, ok := r.Status(url)
	return ok && s.Code == http.StatusOK
}

// Aggregate は全体ステータスを集計します。
// 0件は失敗、全件成功は200、全件失敗は500、混在は207です。
func (r *BatchReport) Aggregate() (int, string) {
	if len(r.Pages) == 0 {
		return http.StatusInternalServerError, MessageNoPages
	}

	succeeded := 0
	for _, p := range r.Pages {
		if p.Code == http.StatusOK {
			succeeded++
		}
	}

	switch succeeded {
	case len(r.Pages):
		return http.StatusOK, MessageSuccess
	case 0:
		return http.StatusInternalServerError, MessageAllFailed
	default:
		return http.StatusMultiStatus, MessagePartialSuccess
	}
}
